package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// sqliteTx implements Tx on an open SQLite transaction.
type sqliteTx struct {
	tx *sql.Tx
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Tx    = (*sqliteTx)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

// lookupErr maps sql.ErrNoRows onto a domain.NotFoundError.
func lookupErr(err error, entity string, key any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(entity, key)
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}

func (t *sqliteTx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// exec runs a statement that must touch exactly one row.
func (t *sqliteTx) execOne(ctx context.Context, entity string, key any, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", entity, err)
	}
	if n == 0 {
		return domain.NewNotFoundError(entity, key)
	}
	return nil
}

func (t *sqliteTx) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------
// Sessions
// ---------------------------------------------------------

const sessionColumns = `id, account_ref, game_tick, speed, active, created_at`

func scanSession(row rowScanner) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.AccountRef, &s.GameTick, &s.Speed, &s.Active, &s.CreatedAt)
	return s, err
}

func (t *sqliteTx) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.AccountRef, s.GameTick, s.Speed, s.Active, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(t.tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "session", id)
	}
	return &s, nil
}

func (t *sqliteTx) ListActiveSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (t *sqliteTx) SetSessionTick(ctx context.Context, id string, tick int64) error {
	return t.execOne(ctx, "session", id, `UPDATE sessions SET game_tick = ? WHERE id = ?`, tick, id)
}

func (t *sqliteTx) SetSessionSpeed(ctx context.Context, id string, speed domain.Speed) error {
	return t.execOne(ctx, "session", id, `UPDATE sessions SET speed = ? WHERE id = ?`, speed, id)
}

func (t *sqliteTx) DeactivateSession(ctx context.Context, id string) error {
	return t.execOne(ctx, "session", id, `UPDATE sessions SET active = 0 WHERE id = ?`, id)
}

// ---------------------------------------------------------
// Players and gateways
// ---------------------------------------------------------

const playerColumns = `id, session_id, handle, balance, uplink_rating, neuromancer_rating, local_address, gateway_id`

func scanPlayer(row rowScanner) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.SessionID, &p.Handle, &p.Balance, &p.UpRating, &p.NeuroRating, &p.LocalAddress, &p.GatewayID)
	return p, err
}

func (t *sqliteTx) CreatePlayer(ctx context.Context, p *domain.Player) error {
	id, err := t.insert(ctx,
		`INSERT INTO players (session_id, handle, balance, uplink_rating, neuromancer_rating, local_address, gateway_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.Handle, p.Balance, p.UpRating, p.NeuroRating, p.LocalAddress, p.GatewayID,
	)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	p.ID = id
	return nil
}

func (t *sqliteTx) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	p, err := scanPlayer(t.tx.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "player", id)
	}
	return &p, nil
}

func (t *sqliteTx) GetPlayerBySession(ctx context.Context, sessionID string) (*domain.Player, error) {
	p, err := scanPlayer(t.tx.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE session_id = ? ORDER BY id LIMIT 1`, sessionID))
	if err != nil {
		return nil, lookupErr(err, "player of session", sessionID)
	}
	return &p, nil
}

func (t *sqliteTx) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	return t.execOne(ctx, "player", p.ID,
		`UPDATE players SET handle = ?, balance = ?, uplink_rating = ?, neuromancer_rating = ?, local_address = ?, gateway_id = ?
		 WHERE id = ?`,
		p.Handle, p.Balance, p.UpRating, p.NeuroRating, p.LocalAddress, p.GatewayID, p.ID,
	)
}

func (t *sqliteTx) CreateGateway(ctx context.Context, g *domain.Gateway) error {
	id, err := t.insert(ctx,
		`INSERT INTO gateways (player_id, cpu_speed, modem_speed, memory_size) VALUES (?, ?, ?, ?)`,
		g.PlayerID, g.CPUSpeed, g.ModemSpeed, g.MemorySize,
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	g.ID = id
	return nil
}

func (t *sqliteTx) GetGateway(ctx context.Context, id int64) (*domain.Gateway, error) {
	var g domain.Gateway
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, player_id, cpu_speed, modem_speed, memory_size FROM gateways WHERE id = ?`, id,
	).Scan(&g.ID, &g.PlayerID, &g.CPUSpeed, &g.ModemSpeed, &g.MemorySize)
	if err != nil {
		return nil, lookupErr(err, "gateway", id)
	}
	return &g, nil
}

func (t *sqliteTx) UpdateGateway(ctx context.Context, g *domain.Gateway) error {
	return t.execOne(ctx, "gateway", g.ID,
		`UPDATE gateways SET cpu_speed = ?, modem_speed = ?, memory_size = ? WHERE id = ?`,
		g.CPUSpeed, g.ModemSpeed, g.MemorySize, g.ID,
	)
}
