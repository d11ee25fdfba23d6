package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// ---------------------------------------------------------
// Messages
// ---------------------------------------------------------

func (t *sqliteTx) CreateMessage(ctx context.Context, m *domain.Message) error {
	id, err := t.insert(ctx,
		`INSERT INTO messages (session_id, player_id, sender, subject, body, created_at_tick) VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.PlayerID, m.From, m.Subject, m.Body, m.CreatedAtTick,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	m.ID = id
	return nil
}

func (t *sqliteTx) ListMessages(ctx context.Context, playerID int64) ([]domain.Message, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, session_id, player_id, sender, subject, body, created_at_tick
		 FROM messages WHERE player_id = ? ORDER BY created_at_tick, id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.PlayerID, &m.From, &m.Subject, &m.Body, &m.CreatedAtTick); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ---------------------------------------------------------
// Missions
// ---------------------------------------------------------

const missionColumns = `id, session_id, kind, description, employer, payment, difficulty, min_rating, target_address, target_file, accepted, completed, accepted_by, created_at_tick`

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var acceptedBy sql.NullInt64
	if err := row.Scan(&m.ID, &m.SessionID, &m.Kind, &m.Description, &m.Employer, &m.Payment, &m.Difficulty,
		&m.MinRating, &m.TargetAddress, &m.TargetFile, &m.Accepted, &m.Completed, &acceptedBy, &m.CreatedAtTick); err != nil {
		return m, err
	}
	if acceptedBy.Valid {
		id := acceptedBy.Int64
		m.AcceptedBy = &id
	}
	return m, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (t *sqliteTx) CreateMission(ctx context.Context, m *domain.Mission) error {
	id, err := t.insert(ctx,
		`INSERT INTO missions (session_id, kind, description, employer, payment, difficulty, min_rating, target_address, target_file, accepted, completed, accepted_by, created_at_tick)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Kind, m.Description, m.Employer, m.Payment, m.Difficulty, m.MinRating,
		m.TargetAddress, m.TargetFile, m.Accepted, m.Completed, nullableID(m.AcceptedBy), m.CreatedAtTick,
	)
	if err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	m.ID = id
	return nil
}

func (t *sqliteTx) GetMission(ctx context.Context, id int64) (*domain.Mission, error) {
	m, err := scanMission(t.tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "mission", id)
	}
	return &m, nil
}

func (t *sqliteTx) UpdateMission(ctx context.Context, m *domain.Mission) error {
	return t.execOne(ctx, "mission", m.ID,
		`UPDATE missions SET accepted = ?, completed = ?, accepted_by = ? WHERE id = ?`,
		m.Accepted, m.Completed, nullableID(m.AcceptedBy), m.ID,
	)
}

func (t *sqliteTx) ListMissions(ctx context.Context, sessionID string) ([]domain.Mission, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE session_id = ? ORDER BY created_at_tick, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	defer rows.Close()

	var missions []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

// DeleteMissionsBefore removes stale offers; accepted missions are kept.
func (t *sqliteTx) DeleteMissionsBefore(ctx context.Context, sessionID string, tick int64) (int64, error) {
	n, err := t.execCount(ctx,
		`DELETE FROM missions WHERE session_id = ? AND accepted = 0 AND created_at_tick < ?`, sessionID, tick)
	if err != nil {
		return 0, fmt.Errorf("failed to expire missions: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------
// News
// ---------------------------------------------------------

func (t *sqliteTx) CreateNews(ctx context.Context, n *domain.NewsArticle) error {
	id, err := t.insert(ctx,
		`INSERT INTO news (session_id, headline, body, created_at_tick) VALUES (?, ?, ?, ?)`,
		n.SessionID, n.Headline, n.Body, n.CreatedAtTick,
	)
	if err != nil {
		return fmt.Errorf("failed to create news article: %w", err)
	}
	n.ID = id
	return nil
}

func (t *sqliteTx) ListNews(ctx context.Context, sessionID string) ([]domain.NewsArticle, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, session_id, headline, body, created_at_tick FROM news WHERE session_id = ? ORDER BY created_at_tick, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	defer rows.Close()

	var articles []domain.NewsArticle
	for rows.Next() {
		var n domain.NewsArticle
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Headline, &n.Body, &n.CreatedAtTick); err != nil {
			return nil, err
		}
		articles = append(articles, n)
	}
	return articles, rows.Err()
}

func (t *sqliteTx) DeleteNewsBefore(ctx context.Context, sessionID string, tick int64) (int64, error) {
	n, err := t.execCount(ctx, `DELETE FROM news WHERE session_id = ? AND created_at_tick < ?`, sessionID, tick)
	if err != nil {
		return 0, fmt.Errorf("failed to expire news: %w", err)
	}
	return n, nil
}
