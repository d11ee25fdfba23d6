package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// ---------------------------------------------------------
// Hosts
// ---------------------------------------------------------

const hostColumns = `id, session_id, name, address, kind, trace_speed, hack_difficulty`

func scanHost(row rowScanner) (domain.TargetHost, error) {
	var h domain.TargetHost
	err := row.Scan(&h.ID, &h.SessionID, &h.Name, &h.Address, &h.Kind, &h.TraceSpeed, &h.HackDifficulty)
	return h, err
}

func (t *sqliteTx) CreateHost(ctx context.Context, h *domain.TargetHost) error {
	id, err := t.insert(ctx,
		`INSERT INTO hosts (session_id, name, address, kind, trace_speed, hack_difficulty) VALUES (?, ?, ?, ?, ?, ?)`,
		h.SessionID, h.Name, h.Address, h.Kind, h.TraceSpeed, h.HackDifficulty,
	)
	if err != nil {
		return fmt.Errorf("failed to create host %s: %w", h.Address, err)
	}
	h.ID = id
	return nil
}

func (t *sqliteTx) GetHost(ctx context.Context, id int64) (*domain.TargetHost, error) {
	h, err := scanHost(t.tx.QueryRowContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "host", id)
	}
	return &h, nil
}

func (t *sqliteTx) GetHostByAddress(ctx context.Context, sessionID, address string) (*domain.TargetHost, error) {
	h, err := scanHost(t.tx.QueryRowContext(ctx,
		`SELECT `+hostColumns+` FROM hosts WHERE session_id = ? AND address = ?`, sessionID, address))
	if err != nil {
		return nil, lookupErr(err, "host", address)
	}
	return &h, nil
}

func (t *sqliteTx) ListHosts(ctx context.Context, sessionID string) ([]domain.TargetHost, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+hostColumns+` FROM hosts WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []domain.TargetHost
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// ---------------------------------------------------------
// Screens and security
// ---------------------------------------------------------

const screenColumns = `id, host_id, screen_type, sub_page, next_page, title, data1, data2, data3`

func scanScreen(row rowScanner) (domain.ScreenDefinition, error) {
	var s domain.ScreenDefinition
	var next sql.NullInt64
	if err := row.Scan(&s.ID, &s.HostID, &s.ScreenType, &s.SubPage, &next, &s.Title, &s.Data1, &s.Data2, &s.Data3); err != nil {
		return s, err
	}
	if next.Valid {
		page := int(next.Int64)
		s.NextPage = &page
	}
	return s, nil
}

func (t *sqliteTx) CreateScreen(ctx context.Context, s *domain.ScreenDefinition) error {
	var next sql.NullInt64
	if s.NextPage != nil {
		next = sql.NullInt64{Int64: int64(*s.NextPage), Valid: true}
	}
	id, err := t.insert(ctx,
		`INSERT INTO screens (host_id, screen_type, sub_page, next_page, title, data1, data2, data3) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.HostID, s.ScreenType, s.SubPage, next, s.Title, s.Data1, s.Data2, s.Data3,
	)
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	s.ID = id
	return nil
}

func (t *sqliteTx) GetScreen(ctx context.Context, id int64) (*domain.ScreenDefinition, error) {
	s, err := scanScreen(t.tx.QueryRowContext(ctx, `SELECT `+screenColumns+` FROM screens WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "screen", id)
	}
	return &s, nil
}

func (t *sqliteTx) ListScreens(ctx context.Context, hostID int64) ([]domain.ScreenDefinition, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+screenColumns+` FROM screens WHERE host_id = ? ORDER BY sub_page, id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list screens: %w", err)
	}
	defer rows.Close()

	var screens []domain.ScreenDefinition
	for rows.Next() {
		s, err := scanScreen(rows)
		if err != nil {
			return nil, err
		}
		screens = append(screens, s)
	}
	return screens, rows.Err()
}

func (t *sqliteTx) CreateSecuritySystem(ctx context.Context, s *domain.SecuritySystem) error {
	id, err := t.insert(ctx,
		`INSERT INTO security_systems (host_id, kind, level, active) VALUES (?, ?, ?, ?)`,
		s.HostID, s.Kind, s.Level, s.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create security system: %w", err)
	}
	s.ID = id
	return nil
}

func (t *sqliteTx) ListSecuritySystems(ctx context.Context, hostID int64) ([]domain.SecuritySystem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, host_id, kind, level, active FROM security_systems WHERE host_id = ? ORDER BY id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list security systems: %w", err)
	}
	defer rows.Close()

	var systems []domain.SecuritySystem
	for rows.Next() {
		var s domain.SecuritySystem
		if err := rows.Scan(&s.ID, &s.HostID, &s.Kind, &s.Level, &s.Active); err != nil {
			return nil, err
		}
		systems = append(systems, s)
	}
	return systems, rows.Err()
}

func (t *sqliteTx) UpdateSecuritySystem(ctx context.Context, s *domain.SecuritySystem) error {
	return t.execOne(ctx, "security system", s.ID,
		`UPDATE security_systems SET kind = ?, level = ?, active = ? WHERE id = ?`,
		s.Kind, s.Level, s.Active, s.ID,
	)
}

// ---------------------------------------------------------
// Files
// ---------------------------------------------------------

const fileColumns = `id, host_id, name, size, kind, version, encrypted, owner`

func scanFile(row rowScanner) (domain.DataFile, error) {
	var f domain.DataFile
	err := row.Scan(&f.ID, &f.HostID, &f.Name, &f.Size, &f.Kind, &f.Version, &f.Encrypted, &f.Owner)
	return f, err
}

func (t *sqliteTx) CreateFile(ctx context.Context, f *domain.DataFile) error {
	id, err := t.insert(ctx,
		`INSERT INTO files (host_id, name, size, kind, version, encrypted, owner) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.HostID, f.Name, f.Size, f.Kind, f.Version, f.Encrypted, f.Owner,
	)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	f.ID = id
	return nil
}

func (t *sqliteTx) GetFile(ctx context.Context, id int64) (*domain.DataFile, error) {
	f, err := scanFile(t.tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "file", id)
	}
	return &f, nil
}

func (t *sqliteTx) ListFiles(ctx context.Context, hostID int64) ([]domain.DataFile, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE host_id = ? ORDER BY id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []domain.DataFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (t *sqliteTx) UpdateFile(ctx context.Context, f *domain.DataFile) error {
	return t.execOne(ctx, "file", f.ID,
		`UPDATE files SET host_id = ?, name = ?, size = ?, kind = ?, version = ?, encrypted = ?, owner = ? WHERE id = ?`,
		f.HostID, f.Name, f.Size, f.Kind, f.Version, f.Encrypted, f.Owner, f.ID,
	)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, id int64) error {
	return t.execOne(ctx, "file", id, `DELETE FROM files WHERE id = ?`, id)
}

// ---------------------------------------------------------
// Access logs
// ---------------------------------------------------------

const logColumns = `id, host_id, session_id, created_at_tick, from_address, from_name, subject, kind, visible, deleted`

func (t *sqliteTx) CreateLog(ctx context.Context, l *domain.AccessLog) error {
	id, err := t.insert(ctx,
		`INSERT INTO access_logs (host_id, session_id, created_at_tick, from_address, from_name, subject, kind, visible, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.HostID, l.SessionID, l.CreatedAtTick, l.FromAddress, l.FromName, l.Subject, l.Kind, l.Visible, l.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to create access log: %w", err)
	}
	l.ID = id
	return nil
}

func (t *sqliteTx) ListLogs(ctx context.Context, hostID int64) ([]domain.AccessLog, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+logColumns+` FROM access_logs WHERE host_id = ? ORDER BY created_at_tick, id`, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AccessLog
	for rows.Next() {
		var l domain.AccessLog
		if err := rows.Scan(&l.ID, &l.HostID, &l.SessionID, &l.CreatedAtTick, &l.FromAddress, &l.FromName,
			&l.Subject, &l.Kind, &l.Visible, &l.Deleted); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (t *sqliteTx) UpdateLog(ctx context.Context, l *domain.AccessLog) error {
	return t.execOne(ctx, "access log", l.ID,
		`UPDATE access_logs SET from_address = ?, from_name = ?, subject = ?, visible = ?, deleted = ? WHERE id = ?`,
		l.FromAddress, l.FromName, l.Subject, l.Visible, l.Deleted, l.ID,
	)
}

func (t *sqliteTx) DeleteLogsBefore(ctx context.Context, sessionID string, tick int64) (int64, error) {
	n, err := t.execCount(ctx, `DELETE FROM access_logs WHERE session_id = ? AND created_at_tick < ?`, sessionID, tick)
	if err != nil {
		return 0, fmt.Errorf("failed to expire access logs: %w", err)
	}
	return n, nil
}
