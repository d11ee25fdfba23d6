package engine

import (
	"context"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

// SecurityScanInterval is the number of ticks between breach scans.
const SecurityScanInterval = 40

// SecurityEngine notices intruders on monitored hosts.
type SecurityEngine struct {
	traces *TraceEngine
	logger *logger.Logger
}

// NewSecurityEngine creates a security engine that starts traces through te.
func NewSecurityEngine(te *TraceEngine, log *logger.Logger) *SecurityEngine {
	return &SecurityEngine{traces: te, logger: log}
}

// ScanBreaches starts a trace on every untraced connection to a monitored host.
func (se *SecurityEngine) ScanBreaches(ctx context.Context, tx storage.Tx, sessionID string) ([]events.TraceStarted, error) {
	conns, err := tx.ListActiveConnections(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var started []events.TraceStarted
	for i := range conns {
		conn := &conns[i]
		if conn.TraceActive {
			continue
		}
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

		monitored, err := hasActiveMonitor(ctx, tx, host.ID)
		if err != nil {
			return nil, err
		}
		if !monitored {
			continue
		}

		ok, err := se.traces.StartTrace(ctx, tx, conn, host)
		if err != nil {
			return nil, err
		}
		if ok {
			started = append(started, events.TraceStarted{TargetIP: host.Address, ComputerName: host.Name})
		}
	}
	return started, nil
}

func hasActiveMonitor(ctx context.Context, tx storage.Tx, hostID int64) (bool, error) {
	systems, err := tx.ListSecuritySystems(ctx, hostID)
	if err != nil {
		return false, err
	}
	for i := range systems {
		if systems[i].Detects() {
			return true, nil
		}
	}
	return false, nil
}
