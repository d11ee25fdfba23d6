package engine

import (
	"context"
	"math"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

const (
	// TickRate is the number of simulation ticks per real second.
	TickRate = 5
	// TraceModifierNoAccount scales trace time for a player without a bank account.
	TraceModifierNoAccount = 0.1
)

// TraceUpdate is the per-connection result of one trace step.
type TraceUpdate struct {
	SessionID       string
	ConnectionID    int64
	Progress        float64
	Active          bool
	TracedAddresses []string
}

// TraceCapture reports a connection the trace has reached.
type TraceCapture struct {
	SessionID     string
	ConnectionID  int64
	TargetAddress string
	Reason        string
}

// TraceIncrement is the progress gained in one tick.
func TraceIncrement(speed domain.Speed, traceSpeed float64, nodes int) float64 {
	n := max(1, nodes)
	effective := traceSpeed * TraceModifierNoAccount * float64(n)
	return float64(speed) / (effective * TickRate)
}

// RevealedCount is the number of bounce nodes identified at a given progress.
func RevealedCount(progress float64, nodes int) int {
	if progress >= 1 {
		return nodes
	}
	return min(nodes, int(math.Floor(progress*float64(nodes))))
}

// TraceEngine pursues the player back along the bounce chain.
type TraceEngine struct {
	logger *logger.Logger
}

// NewTraceEngine creates a new trace engine.
func NewTraceEngine(log *logger.Logger) *TraceEngine {
	return &TraceEngine{logger: log}
}

// StartTrace begins pursuit on a connection. A running trace is left alone.
func (te *TraceEngine) StartTrace(ctx context.Context, tx storage.Tx, conn *domain.Connection, host *domain.TargetHost) (bool, error) {
	if conn.TraceActive {
		return false, nil
	}
	conn.TraceActive = true
	conn.TraceProgress = 0
	if err := tx.UpdateConnection(ctx, conn); err != nil {
		return false, err
	}
	te.logger.Event("TRACE_STARTED", conn.SessionID, host.Address)
	return true, nil
}

// Advance moves every tracing connection of the session forward.
func (te *TraceEngine) Advance(ctx context.Context, tx storage.Tx, speed domain.Speed, sessionID string) ([]TraceUpdate, error) {
	conns, err := tx.ListTracingConnections(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var updates []TraceUpdate
	for i := range conns {
		conn := &conns[i]
		host, err := tx.GetHostByAddress(ctx, sessionID, conn.TargetAddress)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !host.Traceable() {
			continue
		}

		nodes, err := tx.ListBounceNodes(ctx, conn.ID)
		if err != nil {
			return nil, err
		}

		conn.TraceProgress = math.Min(1, conn.TraceProgress+TraceIncrement(speed, host.TraceSpeed, len(nodes)))
		if err := tx.UpdateConnection(ctx, conn); err != nil {
			return nil, err
		}

		traced, err := revealNodes(ctx, tx, nodes, conn.TraceProgress)
		if err != nil {
			return nil, err
		}
		updates = append(updates, TraceUpdate{
			SessionID:       sessionID,
			ConnectionID:    conn.ID,
			Progress:        conn.TraceProgress,
			Active:          conn.TraceActive,
			TracedAddresses: traced,
		})
	}
	return updates, nil
}

// revealNodes marks the hops nearest the target as traced.
func revealNodes(ctx context.Context, tx storage.Tx, nodes []domain.BounceNode, progress float64) ([]string, error) {
	count := RevealedCount(progress, len(nodes))
	traced := make([]string, 0, count)
	for i := len(nodes) - 1; i >= len(nodes)-count; i-- {
		n := &nodes[i]
		if !n.Traced {
			n.Traced = true
			if err := tx.UpdateBounceNode(ctx, n); err != nil {
				return nil, err
			}
		}
		traced = append(traced, n.Address)
	}
	return traced, nil
}

// CheckCompletions ends every connection whose trace has finished.
func (te *TraceEngine) CheckCompletions(ctx context.Context, tx storage.Tx, sessionID string) ([]TraceCapture, error) {
	conns, err := tx.ListTracingConnections(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var captures []TraceCapture
	for i := range conns {
		conn := &conns[i]
		if conn.TraceProgress < 1 {
			continue
		}
		conn.Active = false
		conn.TraceActive = false
		if err := tx.UpdateConnection(ctx, conn); err != nil {
			return nil, err
		}
		te.logger.Event("TRACE_COMPLETE", sessionID, conn.TargetAddress)
		captures = append(captures, TraceCapture{
			SessionID:     sessionID,
			ConnectionID:  conn.ID,
			TargetAddress: conn.TargetAddress,
			Reason:        "traced",
		})
	}
	return captures, nil
}
