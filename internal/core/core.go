// Package core wires the external interfaces from spec.md §6 onto the
// Agent: inbound text/image/audio message handling with processed-message
// deduplication, and outbound delivery through the ActionQueue.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/driftwatch/internal/actionqueue"
	"github.com/nextlevelbuilder/driftwatch/internal/agent"
	"github.com/nextlevelbuilder/driftwatch/internal/memory"
	"github.com/nextlevelbuilder/driftwatch/internal/ports"
)

// fallbackReply is the deterministic reply spec.md §7 requires on any
// reply-path failure: every inbound message still gets a reply, even
// when an agent/vision/STT/TTS call fails transiently.
const fallbackReply = "Sorry, I encountered an issue…"

// MediaAdapter downloads inbound media, the download side of the
// "external media adapter" spec.md §6 refers to. Outbound media is saved
// through ports.MediaStore instead.
type MediaAdapter interface {
	Download(ctx context.Context, mediaID string) ([]byte, error)
}

// HistoryRecorder is the slice of memory.HistoryStore Core needs: the
// durable append-only write path spec.md §3 assigns to HistoryEntry
// ("Created on every inbound or generated reply").
type HistoryRecorder interface {
	Store(ctx context.Context, e memory.HistoryEntry) error
}

// Core is the entry point external transports call into.
type Core struct {
	db       *sql.DB
	agent    *agent.Agent
	queue    *actionqueue.Queue
	history  HistoryRecorder
	vision   ports.VisionAnalyzer
	stt      ports.SpeechTranscriber
	tts      ports.SpeechSynthesizer
	media    MediaAdapter
	mediaOut ports.MediaStore
}

// Config bundles Core's collaborators.
type Config struct {
	DB                *sql.DB
	Agent             *agent.Agent
	Queue             *actionqueue.Queue
	History           HistoryRecorder
	VisionAnalyzer    ports.VisionAnalyzer
	SpeechTranscriber ports.SpeechTranscriber
	SpeechSynthesizer ports.SpeechSynthesizer
	Media             MediaAdapter
	MediaStore        ports.MediaStore
}

// New constructs a Core.
func New(cfg Config) *Core {
	return &Core{
		db:       cfg.DB,
		agent:    cfg.Agent,
		queue:    cfg.Queue,
		history:  cfg.History,
		vision:   cfg.VisionAnalyzer,
		stt:      cfg.SpeechTranscriber,
		tts:      cfg.SpeechSynthesizer,
		media:    cfg.Media,
		mediaOut: cfg.MediaStore,
	}
}

// HandleIncomingMessage implements spec.md §6's inbound text path:
// deduplicate by messageID, then run the agent's tool-calling loop and
// enqueue the reply.
func (c *Core) HandleIncomingMessage(ctx context.Context, userID, text, messageID string) error {
	isNew, err := c.markProcessed(ctx, messageID, userID, "text")
	if err != nil {
		return fmt.Errorf("core: mark processed: %w", err)
	}
	if !isNew {
		return nil
	}

	c.recordHistory(ctx, userID, memory.RoleUser, text, memory.MessageTypeText)

	reply, err := c.agent.HandleUserMessage(ctx, userID, text)
	if err != nil {
		return c.failMessage(userID, messageID, "handle message", err)
	}
	c.recordHistory(ctx, userID, memory.RoleAssistant, reply, memory.MessageTypeText)
	c.enqueueReply(userID, reply)
	return nil
}

// HandleImageMessage implements spec.md §6's inbound image path: download
// the media, analyze it, then treat the analysis + caption as the user's
// message text.
func (c *Core) HandleImageMessage(ctx context.Context, userID, mediaID, mimeType, sha, caption string) error {
	isNew, err := c.markProcessed(ctx, sha, userID, "image")
	if err != nil {
		return fmt.Errorf("core: mark processed: %w", err)
	}
	if !isNew {
		return nil
	}

	bytes, err := c.media.Download(ctx, mediaID)
	if err != nil {
		return c.failMessage(userID, sha, "download image", err)
	}
	analysis, err := c.vision.Analyze(ctx, bytes, mimeType)
	if err != nil {
		return c.failMessage(userID, sha, "analyze image", err)
	}

	text := fmt.Sprintf("[USER SENT AN IMAGE]\n\nImage Analysis:\n%s\n\n%s", analysis, caption)
	c.recordHistory(ctx, userID, memory.RoleUser, text, memory.MessageTypeImage)

	reply, err := c.agent.HandleUserMessage(ctx, userID, text)
	if err != nil {
		return c.failMessage(userID, sha, "handle message", err)
	}
	c.recordHistory(ctx, userID, memory.RoleAssistant, reply, memory.MessageTypeText)
	c.enqueueReply(userID, reply)
	return nil
}

// HandleAudioMessage implements spec.md §6's inbound audio path: transcribe
// the clip, run the agent, then synthesize the reply back to speech, save
// it through the MediaStore, and enqueue a MEDIA: reference to it.
func (c *Core) HandleAudioMessage(ctx context.Context, userID, mediaID, mimeType, sha string) error {
	isNew, err := c.markProcessed(ctx, sha, userID, "audio")
	if err != nil {
		return fmt.Errorf("core: mark processed: %w", err)
	}
	if !isNew {
		return nil
	}

	bytes, err := c.media.Download(ctx, mediaID)
	if err != nil {
		return c.failMessage(userID, sha, "download audio", err)
	}
	text, err := c.stt.Transcribe(ctx, bytes, mimeType)
	if err != nil {
		return c.failMessage(userID, sha, "transcribe audio", err)
	}
	c.recordHistory(ctx, userID, memory.RoleUser, text, memory.MessageTypeAudio)

	reply, err := c.agent.HandleUserMessage(ctx, userID, text)
	if err != nil {
		return c.failMessage(userID, sha, "handle message", err)
	}
	c.recordHistory(ctx, userID, memory.RoleAssistant, reply, memory.MessageTypeAudio)

	audio, audioMime, err := c.tts.Synthesize(ctx, reply)
	if err != nil {
		return c.failMessage(userID, sha, "synthesize reply", err)
	}
	path, err := c.mediaOut.Save(ctx, "reply-"+messageIDSuffix(sha), audio)
	if err != nil {
		return c.failMessage(userID, sha, "save reply audio", err)
	}

	c.enqueueReply(userID, fmt.Sprintf("MEDIA:%s:%s", audioMime, path))
	return nil
}

// markProcessed inserts messageID into processed_message, returning
// isNew=false on a duplicate (spec.md §6 ProcessedMessageMarker).
func (c *Core) markProcessed(ctx context.Context, messageID, sender, msgType string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO processed_message (message_id, processed_at, sender, type) VALUES (?, strftime('%s','now'), ?, ?)
		 ON CONFLICT(message_id) DO NOTHING`,
		messageID, sender, msgType)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// recordHistory appends one durable HistoryEntry (spec.md §3: "Created on
// every inbound or generated reply"). A failure here is logged and
// swallowed — it must never block a reply the user is waiting on.
func (c *Core) recordHistory(ctx context.Context, userID, role, content, messageType string) {
	if c.history == nil {
		return
	}
	if err := c.history.Store(ctx, memory.HistoryEntry{
		UserID:      userID,
		Role:        role,
		Content:     content,
		MessageType: messageType,
	}); err != nil {
		slog.Warn("core: history store failed", "user", userID, "role", role, "error", err)
	}
}

func (c *Core) enqueueReply(userID, content string) {
	c.queue.Enqueue(actionqueue.EnqueueRequest{
		Kind:    actionqueue.KindMessage,
		UserID:  userID,
		Content: content,
	})
}

// failMessage implements spec.md §7's user-visible guarantee: every
// reply-path failure (agent, vision, STT, TTS, download — all
// TransientNetwork/Timeout in practice) still enqueues the deterministic
// fallback reply and logs the messageId, so nothing is lost silently.
func (c *Core) failMessage(userID, messageID, stage string, err error) error {
	slog.Error("core: reply path failed, sending fallback", "stage", stage, "user", userID, "messageId", messageID, "error", err)
	c.enqueueReply(userID, fallbackReply)
	return fmt.Errorf("core: %s: %w", stage, err)
}

func messageIDSuffix(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
