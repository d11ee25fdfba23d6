package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

const connectionColumns = `id, session_id, player_id, target_address, active, trace_progress, trace_active, host_id, sub_page`

func scanConnection(row rowScanner) (domain.Connection, error) {
	var c domain.Connection
	err := row.Scan(&c.ID, &c.SessionID, &c.PlayerID, &c.TargetAddress, &c.Active,
		&c.TraceProgress, &c.TraceActive, &c.HostID, &c.SubPage)
	return c, err
}

func (t *sqliteTx) EnsureConnection(ctx context.Context, sessionID string, playerID int64) (*domain.Connection, error) {
	c, err := scanConnection(t.tx.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE player_id = ?`, playerID))
	if err == nil {
		return &c, nil
	}
	if err = lookupErr(err, "connection", playerID); !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	id, err := t.insert(ctx, `INSERT INTO connections (session_id, player_id) VALUES (?, ?)`, sessionID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return &domain.Connection{ID: id, SessionID: sessionID, PlayerID: playerID}, nil
}

func (t *sqliteTx) UpdateConnection(ctx context.Context, c *domain.Connection) error {
	return t.execOne(ctx, "connection", c.ID,
		`UPDATE connections SET target_address = ?, active = ?, trace_progress = ?, trace_active = ?, host_id = ?, sub_page = ?
		 WHERE id = ?`,
		c.TargetAddress, c.Active, c.TraceProgress, c.TraceActive, c.HostID, c.SubPage, c.ID,
	)
}

func (t *sqliteTx) listConnections(ctx context.Context, query string, args ...any) ([]domain.Connection, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (t *sqliteTx) ListActiveConnections(ctx context.Context, sessionID string) ([]domain.Connection, error) {
	return t.listConnections(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE session_id = ? AND active = 1 ORDER BY id`, sessionID)
}

func (t *sqliteTx) ListTracingConnections(ctx context.Context, sessionID string) ([]domain.Connection, error) {
	return t.listConnections(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE session_id = ? AND active = 1 AND trace_active = 1 ORDER BY id`, sessionID)
}

// ---------------------------------------------------------
// Bounce nodes
// ---------------------------------------------------------

func (t *sqliteTx) ListBounceNodes(ctx context.Context, connectionID int64) ([]domain.BounceNode, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, connection_id, position, address, traced FROM bounce_nodes WHERE connection_id = ? ORDER BY position`,
		connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounce nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.BounceNode
	for rows.Next() {
		var n domain.BounceNode
		if err := rows.Scan(&n.ID, &n.ConnectionID, &n.Position, &n.Address, &n.Traced); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (t *sqliteTx) AddBounceNode(ctx context.Context, n *domain.BounceNode) error {
	id, err := t.insert(ctx,
		`INSERT INTO bounce_nodes (connection_id, position, address, traced) VALUES (?, ?, ?, ?)`,
		n.ConnectionID, n.Position, n.Address, n.Traced,
	)
	if err != nil {
		return fmt.Errorf("failed to add bounce node: %w", err)
	}
	n.ID = id
	return nil
}

func (t *sqliteTx) UpdateBounceNode(ctx context.Context, n *domain.BounceNode) error {
	return t.execOne(ctx, "bounce node", n.ID,
		`UPDATE bounce_nodes SET position = ?, traced = ? WHERE id = ?`, n.Position, n.Traced, n.ID)
}

func (t *sqliteTx) DeleteBounceNode(ctx context.Context, id int64) error {
	return t.execOne(ctx, "bounce node", id, `DELETE FROM bounce_nodes WHERE id = ?`, id)
}
