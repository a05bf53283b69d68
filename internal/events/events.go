// Package events publishes lead-discovered notifications for downstream
// consumers (CRM sync, notification fan-out).
package events

import (
	"context"
	"time"
)

// LeadDiscovered is emitted after a website analysis completes.
type LeadDiscovered struct {
	QueryID      string    `json:"query_id"`
	URL          string    `json:"url"`
	BusinessName string    `json:"business_name,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	EmailCount   int       `json:"email_count"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Publisher pushes lead events to a topic. Publishing is fire-and-forget
// from the pipeline's perspective: failures are logged, never fatal.
type Publisher interface {
	Publish(ctx context.Context, event LeadDiscovered) error
}
