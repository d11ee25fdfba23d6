package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// ---------------------------------------------------------
// Running tasks
// ---------------------------------------------------------

const taskColumns = `id, session_id, player_id, tool_name, tool_version, target_address, params, progress, ticks_remaining, initial_ticks, active`

func scanTask(row rowScanner) (domain.RunningTask, error) {
	var task domain.RunningTask
	var params string
	if err := row.Scan(&task.ID, &task.SessionID, &task.PlayerID, &task.ToolName, &task.ToolVersion,
		&task.TargetAddress, &params, &task.Progress, &task.TicksRemaining, &task.InitialTicks, &task.Active); err != nil {
		return task, err
	}
	if err := json.Unmarshal([]byte(params), &task.Params); err != nil {
		return task, fmt.Errorf("failed to unmarshal task params: %w", err)
	}
	return task, nil
}

func (t *sqliteTx) CreateTask(ctx context.Context, task *domain.RunningTask) error {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal task params: %w", err)
	}
	id, err := t.insert(ctx,
		`INSERT INTO tasks (session_id, player_id, tool_name, tool_version, target_address, params, progress, ticks_remaining, initial_ticks, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.SessionID, task.PlayerID, task.ToolName, task.ToolVersion, task.TargetAddress, string(params),
		task.Progress, task.TicksRemaining, task.InitialTicks, task.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	task.ID = id
	return nil
}

func (t *sqliteTx) GetTask(ctx context.Context, id int64) (*domain.RunningTask, error) {
	task, err := scanTask(t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		return nil, lookupErr(err, "task", id)
	}
	return &task, nil
}

func (t *sqliteTx) UpdateTask(ctx context.Context, task *domain.RunningTask) error {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal task params: %w", err)
	}
	return t.execOne(ctx, "task", task.ID,
		`UPDATE tasks SET params = ?, progress = ?, ticks_remaining = ?, active = ? WHERE id = ?`,
		string(params), task.Progress, task.TicksRemaining, task.Active, task.ID,
	)
}

func (t *sqliteTx) ListActiveTasks(ctx context.Context, sessionID string) ([]domain.RunningTask, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE session_id = ? AND active = 1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.RunningTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ---------------------------------------------------------
// Scheduled events
// ---------------------------------------------------------

const eventColumns = `id, session_id, kind, trigger_tick, payload, processed`

func (t *sqliteTx) CreateEvent(ctx context.Context, e *domain.ScheduledEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	id, err := t.insert(ctx,
		`INSERT INTO scheduled_events (session_id, kind, trigger_tick, payload, processed) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Kind, e.TriggerTick, string(payload), e.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule event: %w", err)
	}
	e.ID = id
	return nil
}

func (t *sqliteTx) listEvents(ctx context.Context, query string, args ...any) ([]domain.ScheduledEvent, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []domain.ScheduledEvent
	for rows.Next() {
		var e domain.ScheduledEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.TriggerTick, &payload, &e.Processed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of event %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (t *sqliteTx) ListDueEvents(ctx context.Context, sessionID string, tick int64) ([]domain.ScheduledEvent, error) {
	return t.listEvents(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events
		 WHERE session_id = ? AND processed = 0 AND trigger_tick <= ?
		 ORDER BY trigger_tick, id`, sessionID, tick)
}

func (t *sqliteTx) ListPendingEvents(ctx context.Context, sessionID string) ([]domain.ScheduledEvent, error) {
	return t.listEvents(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events
		 WHERE session_id = ? AND processed = 0
		 ORDER BY trigger_tick, id`, sessionID)
}

func (t *sqliteTx) MarkEventProcessed(ctx context.Context, id int64) (bool, error) {
	n, err := t.execCount(ctx, `UPDATE scheduled_events SET processed = 1 WHERE id = ? AND processed = 0`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark event %d processed: %w", id, err)
	}
	return n == 1, nil
}
