package engine

import (
	"context"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

// Subsystem is an optional periodic simulation that runs after the core
// systems of a session pass. Availability is decided once, when the engine
// is built; an unavailable subsystem is never called.
type Subsystem interface {
	Name() string
	Available() bool
	// Interval is the number of ticks between runs.
	Interval() int64
	Run(ctx context.Context, tx storage.Tx, session *domain.Session, out *events.Outbox) error
}

// NewsWire publishes headlines into each session's news feed.
type NewsWire struct {
	headlines []string
	every     int64
}

// NewNewsWire creates a news wire posting one headline every `every` ticks.
func NewNewsWire(headlines []string, every int64) *NewsWire {
	return &NewsWire{headlines: headlines, every: every}
}

func (n *NewsWire) Name() string { return "news_wire" }

// Available reports whether there is anything to publish.
func (n *NewsWire) Available() bool { return len(n.headlines) > 0 && n.every > 0 }

func (n *NewsWire) Interval() int64 { return n.every }

// Run posts the next headline, cycling through the list by game time.
func (n *NewsWire) Run(ctx context.Context, tx storage.Tx, session *domain.Session, _ *events.Outbox) error {
	idx := (session.GameTick / n.every) % int64(len(n.headlines))
	return tx.CreateNews(ctx, &domain.NewsArticle{
		SessionID:     session.ID,
		Headline:      n.headlines[idx],
		CreatedAtTick: session.GameTick,
	})
}
