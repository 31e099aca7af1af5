// Package ports declares the capability interfaces the core consumes from
// external collaborators: the messaging transport, the LLM provider, the
// page fetcher/link extractor, and persistent media storage. None of these
// are implemented by the core itself. The default adapters this repo ships
// live in internal/browser/fetch_rod.go, internal/providers,
// internal/search and internal/mediastore.
package ports

import "context"

// Message is a single turn in a conversation, shared by ContextStore,
// SummaryStore and the Agent tool-calling loop.
type Message struct {
	Role    string // "user", "assistant", "system", "tool"
	Content string
}

// ToolDefinition describes a tool schema offered to the ToolCompleter.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// CompletionRequest is the input to TextCompleter/ToolCompleter.
type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// CompletionResponse is returned by TextCompleter/ToolCompleter.
type CompletionResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// TextCompleter produces plain-text completions (summaries, digests,
// proactive-message decisions). No tool calling.
type TextCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ToolCompleter drives the agent's tool-calling loop.
type ToolCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Embedder turns text into a dense vector for the knowledge base.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VisionAnalyzer describes the content of an image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imageBytes []byte, mimeType string) (string, error)
}

// SpeechTranscriber turns spoken audio into text.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, audioBytes []byte, mimeType string) (string, error)
}

// SpeechSynthesizer turns text into spoken audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (audioBytes []byte, mimeType string, err error)
}

// MessageSender delivers content to a user over whatever transport the
// caller wired in. Returning a non-nil error marks the send as failed for
// ActionQueue retry accounting.
type MessageSender func(ctx context.Context, userID, content string) error

// SignatureVerifier authenticates an inbound transport payload before it
// reaches the core. Rejection happens at the boundary — Unauthorized
// never reaches the core (spec.md §7).
type SignatureVerifier interface {
	Verify(payload, signature []byte) bool
}

// ArticleLink is a candidate article URL discovered on a hub page.
type ArticleLink struct {
	URL   string
	Title string
}

// LinkExtractor returns candidate article links from a hub page.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, hubURL string) ([]ArticleLink, error)
}

// PageFetcher returns cleaned main-content text for a URL.
type PageFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// SearchResult is a single web search hit used by the enrichment checklist.
type SearchResult struct {
	Title       string
	URL         string
	Description string
}

// SearchProvider is the web search backend used by the web_search tool and
// the Browser's enrichment step.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// MediaStore persists generated media to the filesystem. Core saves
// synthesized voice replies through it; screenshots and downloaded media
// are not saved.
type MediaStore interface {
	Save(ctx context.Context, name string, content []byte) (path string, err error)
	Load(ctx context.Context, path string) ([]byte, error)
}
