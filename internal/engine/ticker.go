// Package engine contains the simulation loop and the systems it drives.
//
// One tick advances every active session: tasks, traces, breach scans,
// consequences and scheduled events, all inside a single transaction.
// Notifications leave the engine only after that transaction commits.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

// TickInterval is the real time between two ticks (TickRate per second).
const TickInterval = time.Second / TickRate

// Ticker is the simulation heartbeat. It knows nothing about sessions,
// only that onTick must run once per interval and never twice at once.
type Ticker struct {
	interval   time.Duration
	onTick     func(ctx context.Context, tickNumber int64)
	logger     *logger.Logger
	tickNumber int64

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewTicker creates a ticker calling onTick every interval.
func NewTicker(interval time.Duration, onTick func(ctx context.Context, tickNumber int64), log *logger.Logger) *Ticker {
	return &Ticker{
		interval: interval,
		onTick:   onTick,
		logger:   log,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called. It blocks.
func (t *Ticker) Start(ctx context.Context) {
	defer close(t.done)
	t.logger.Infof("Ticker started at %s per tick", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// A tick in flight finishes even if ctx is cancelled under it.
	tickCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Ticker stopped by context.")
			return
		case <-t.stopChan:
			t.logger.Info("Ticker stopped manually.")
			return
		case <-ticker.C:
			t.tickNumber++
			t.onTick(tickCtx, t.tickNumber)
		}
	}
}

// Stop ends the loop and waits for the tick in flight. Safe to call more
// than once, and before Start has returned.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
	<-t.done
}

// TickNumber is the number of ticks run so far. Only valid once stopped.
func (t *Ticker) TickNumber() int64 {
	return t.tickNumber
}
