// Package browser implements the autonomous web crawler from spec.md §4.5:
// hub selection, article discovery, per-URL change detection, enrichment,
// and bounded discovery of new hubs.
package browser

import "time"

// HubSource enumerates how a FavoriteHub entered the set.
const (
	HubSourceDefault    = "default"
	HubSourceUser       = "user"
	HubSourceDiscovered = "discovered"
)

// FavoriteHub is a durable crawl seed (spec.md §3 FavoriteHub).
type FavoriteHub struct {
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	LastVisited time.Time `json:"lastVisited"`
	VisitCount  int       `json:"visitCount"`
	AddedAt     time.Time `json:"addedAt"`
	Source      string    `json:"source"`
}

// LinkTrackingEntry is the durable per-URL change-detection record
// (spec.md §3 LinkTrackingEntry).
type LinkTrackingEntry struct {
	URL         string    `json:"url"`
	LastScraped time.Time `json:"lastScraped"`
	ContentHash string    `json:"contentHash"`
}

// SurfResult summarizes one Surf() pass.
type SurfResult struct {
	Visited []string
	Learned int
}
