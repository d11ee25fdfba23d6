package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

// TaskResult is the outcome of advancing one task by one tick.
type TaskResult struct {
	Task      domain.RunningTask
	Completed bool
	// Payout is the mission money credited by the completion, if any.
	Payout   int64
	Balance  int64
	Messages []domain.Message
}

// TaskEngine runs tools over time and applies their effects on completion.
type TaskEngine struct {
	logger *logger.Logger
}

// NewTaskEngine creates a new task engine.
func NewTaskEngine(log *logger.Logger) *TaskEngine {
	return &TaskEngine{logger: log}
}

// StartTask validates the request, computes the tick cost and persists a new task.
func (te *TaskEngine) StartTask(ctx context.Context, tx storage.Tx, sessionID string, playerID int64,
	tool domain.Tool, version int, targetAddress string, params domain.TaskParams) (*domain.RunningTask, error) {

	if !knownTool(tool) {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown tool %q", tool))
	}
	if version < 1 {
		return nil, domain.NewValidationError("tool version must be at least 1")
	}

	player, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	gateway, err := tx.GetGateway(ctx, player.GatewayID)
	if err != nil {
		return nil, err
	}
	if err := te.requireInstalled(ctx, tx, sessionID, player, tool, version); err != nil {
		return nil, err
	}

	target, err := tx.GetHostByAddress(ctx, sessionID, targetAddress)
	if err != nil {
		return nil, err
	}

	task := &domain.RunningTask{
		SessionID:     sessionID,
		PlayerID:      playerID,
		ToolName:      tool,
		ToolVersion:   version,
		TargetAddress: targetAddress,
		Params:        params,
		Active:        true,
	}

	base, err := te.baseTicks(ctx, tx, task, target)
	if err != nil {
		return nil, err
	}
	if base == domain.Indefinite {
		task.InitialTicks, task.TicksRemaining = domain.Indefinite, domain.Indefinite
	} else {
		ticks := math.Max(1, base*cpuModifier(gateway.CPUSpeed))
		task.InitialTicks, task.TicksRemaining = ticks, ticks
	}

	if err := tx.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	te.logger.Event("TASK_STARTED", sessionID, fmt.Sprintf("%s v%d against %s (%.0f ticks)", tool, version, targetAddress, task.InitialTicks))
	return task, nil
}

// requireInstalled checks the player's gateway holds the tool at the version or better.
func (te *TaskEngine) requireInstalled(ctx context.Context, tx storage.Tx, sessionID string, player *domain.Player, tool domain.Tool, version int) error {
	home, err := tx.GetHostByAddress(ctx, sessionID, player.LocalAddress)
	if err != nil {
		return err
	}
	files, err := tx.ListFiles(ctx, home.ID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Kind == domain.FileSoftware && f.Name == string(tool) && f.Version >= version {
			return nil
		}
	}
	return domain.NewValidationError(fmt.Sprintf("%s v%d is not installed on your gateway", tool, version))
}

// baseTicks returns the cost at BaseCPUSpeed, or domain.Indefinite.
func (te *TaskEngine) baseTicks(ctx context.Context, tx storage.Tx, task *domain.RunningTask, target *domain.TargetHost) (float64, error) {
	switch task.ToolName {
	case domain.ToolPasswordBreaker:
		password, err := gatePassword(ctx, tx, task.Params.ScreenID, target)
		if err != nil {
			return 0, err
		}
		return math.Max(1, target.HackDifficulty) * float64(len(password)), nil

	case domain.ToolFileCopier, domain.ToolFileDeleter, domain.ToolDecrypter:
		file, err := targetFile(ctx, tx, task.Params.FileID, target)
		if err != nil {
			return 0, err
		}
		switch task.ToolName {
		case domain.ToolFileCopier:
			return float64(ticksPerSizeCopy * file.Size), nil
		case domain.ToolFileDeleter:
			return float64(ticksPerSizeDelete * file.Size), nil
		default:
			if file.Encrypted == 0 {
				return 0, domain.NewValidationError(file.Name + " is not encrypted")
			}
			return float64(ticksPerSizeDecrypt * file.Size), nil
		}

	case domain.ToolLogDeleter:
		if task.ToolVersion == 2 && task.Params.LogID == 0 {
			return 0, domain.NewValidationError("Log_Deleter v2 needs a log_id")
		}
		return ticksLogDelete, nil

	case domain.ToolLogUnDeleter:
		return ticksLogUndelete, nil

	case domain.ToolMonitorBypass:
		return ticksMonitorBypass / float64(task.ToolVersion), nil
	case domain.ToolFirewallDisable:
		return ticksFirewallDisable / float64(task.ToolVersion), nil
	case domain.ToolProxyDisable:
		return ticksProxyDisable / float64(task.ToolVersion), nil

	case domain.ToolTraceTracker:
		return domain.Indefinite, nil
	}
	return 0, domain.NewValidationError(fmt.Sprintf("unknown tool %q", task.ToolName))
}

func gatePassword(ctx context.Context, tx storage.Tx, screenID int64, target *domain.TargetHost) (string, error) {
	if screenID == 0 {
		return "", domain.NewValidationError("Password_Breaker needs a screen_id")
	}
	screen, err := tx.GetScreen(ctx, screenID)
	if err != nil {
		return "", err
	}
	if screen.HostID != target.ID || !screen.ScreenType.Gate() {
		return "", domain.NewValidationError("screen is not a password screen on the target")
	}
	return screen.Data1, nil
}

func targetFile(ctx context.Context, tx storage.Tx, fileID int64, target *domain.TargetHost) (*domain.DataFile, error) {
	if fileID == 0 {
		return nil, domain.NewValidationError("a file_id is required")
	}
	file, err := tx.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.HostID != target.ID {
		return nil, domain.NewValidationError(file.Name + " is not on the target")
	}
	return file, nil
}

// Advance moves a task forward by speed ticks of work. Completion effects
// run exactly once: on the transition from active to inactive.
func (te *TaskEngine) Advance(ctx context.Context, tx storage.Tx, task domain.RunningTask, speed domain.Speed) (TaskResult, error) {
	result := TaskResult{Task: task}
	if !task.Active {
		return result, nil
	}
	if task.Indefinite() {
		return te.track(ctx, tx, task)
	}

	task.TicksRemaining = math.Max(0, task.TicksRemaining-float64(speed))
	task.Progress = 1 - task.TicksRemaining/task.InitialTicks

	if task.ToolName == domain.ToolPasswordBreaker {
		if err := te.revealPassword(ctx, tx, &task); err != nil {
			return result, err
		}
	}

	if task.TicksRemaining == 0 {
		task.Active = false
		task.Progress = 1
		if err := te.complete(ctx, tx, &task, &result); err != nil {
			return result, err
		}
		result.Completed = true
	}

	if err := tx.UpdateTask(ctx, &task); err != nil {
		return result, err
	}
	result.Task = task
	return result, nil
}

// track copies the trace state of the player's connection into a
// Trace_Tracker. Other indefinite tasks are left untouched.
func (te *TaskEngine) track(ctx context.Context, tx storage.Tx, task domain.RunningTask) (TaskResult, error) {
	if task.ToolName != domain.ToolTraceTracker {
		return TaskResult{Task: task}, nil
	}
	conn, err := tx.EnsureConnection(ctx, task.SessionID, task.PlayerID)
	if err != nil {
		return TaskResult{Task: task}, err
	}
	task.Params.TraceProgress = conn.TraceProgress
	task.Params.TraceActive = conn.TraceActive
	if err := tx.UpdateTask(ctx, &task); err != nil {
		return TaskResult{Task: task}, err
	}
	return TaskResult{Task: task}, nil
}

func (te *TaskEngine) revealPassword(ctx context.Context, tx storage.Tx, task *domain.RunningTask) error {
	screen, err := tx.GetScreen(ctx, task.Params.ScreenID)
	if err != nil {
		return err
	}
	n := int(math.Floor(task.Progress * float64(len(screen.Data1))))
	if task.TicksRemaining == 0 {
		n = len(screen.Data1)
	}
	task.Params.Revealed = screen.Data1[:n]
	return nil
}

func (te *TaskEngine) complete(ctx context.Context, tx storage.Tx, task *domain.RunningTask, result *TaskResult) error {
	target, err := tx.GetHostByAddress(ctx, task.SessionID, task.TargetAddress)
	if err != nil {
		return err
	}
	player, err := tx.GetPlayer(ctx, task.PlayerID)
	if err != nil {
		return err
	}
	result.Balance = player.Balance

	switch task.ToolName {
	case domain.ToolPasswordBreaker:
		te.logger.Event("PASSWORD_BROKEN", task.SessionID, target.Address)
		return nil

	case domain.ToolFileCopier, domain.ToolFileDeleter, domain.ToolDecrypter:
		file, err := tx.GetFile(ctx, task.Params.FileID)
		if domain.IsNotFound(err) {
			te.logger.Warnf("task %d finished but file %d is gone", task.ID, task.Params.FileID)
			return nil
		}
		if err != nil {
			return err
		}
		return te.applyFileEffect(ctx, tx, task, target, player, file, result)

	case domain.ToolLogDeleter:
		return deleteLogs(ctx, tx, target.ID, task.ToolVersion, task.Params.LogID)

	case domain.ToolLogUnDeleter:
		return undeleteLogs(ctx, tx, target.ID)

	case domain.ToolMonitorBypass, domain.ToolFirewallDisable, domain.ToolProxyDisable:
		kind, _ := countermeasure(task.ToolName)
		return te.disableSecurity(ctx, tx, task.SessionID, target, kind)
	}
	return nil
}

// disableSecurity switches off every system of kind on the target.
func (te *TaskEngine) disableSecurity(ctx context.Context, tx storage.Tx, sessionID string, target *domain.TargetHost, kind domain.SecurityKind) error {
	systems, err := tx.ListSecuritySystems(ctx, target.ID)
	if err != nil {
		return err
	}
	for i := range systems {
		sys := &systems[i]
		if sys.Kind != kind || !sys.Active {
			continue
		}
		sys.Active = false
		if err := tx.UpdateSecuritySystem(ctx, sys); err != nil {
			return err
		}
		te.logger.Event("SECURITY_DISABLED", sessionID, fmt.Sprintf("%s kind %d on %s", target.Name, kind, target.Address))
	}
	return nil
}

func (te *TaskEngine) applyFileEffect(ctx context.Context, tx storage.Tx, task *domain.RunningTask,
	target *domain.TargetHost, player *domain.Player, file *domain.DataFile, result *TaskResult) error {

	switch task.ToolName {
	case domain.ToolDecrypter:
		file.Encrypted = 0
		return tx.UpdateFile(ctx, file)

	case domain.ToolFileCopier:
		home, err := tx.GetHostByAddress(ctx, task.SessionID, player.LocalAddress)
		if err != nil {
			return err
		}
		clone := *file
		clone.ID, clone.HostID = 0, home.ID
		if err := tx.CreateFile(ctx, &clone); err != nil {
			return err
		}
		if err := writeFileLog(ctx, tx, task, target, player, domain.LogFileCopied, "File copied: "+file.Name); err != nil {
			return err
		}

	case domain.ToolFileDeleter:
		if err := tx.DeleteFile(ctx, file.ID); err != nil {
			return err
		}
		if err := writeFileLog(ctx, tx, task, target, player, domain.LogFileDeleted, "File deleted: "+file.Name); err != nil {
			return err
		}
	}

	paid, messages, err := completeMissions(ctx, tx, player, task, file.Name)
	if err != nil {
		return err
	}
	result.Payout = paid
	result.Balance = player.Balance
	result.Messages = messages
	return nil
}

func writeFileLog(ctx context.Context, tx storage.Tx, task *domain.RunningTask, target *domain.TargetHost,
	player *domain.Player, kind domain.LogKind, subject string) error {

	session, err := tx.GetSession(ctx, task.SessionID)
	if err != nil {
		return err
	}
	return tx.CreateLog(ctx, &domain.AccessLog{
		HostID:        target.ID,
		SessionID:     task.SessionID,
		CreatedAtTick: session.GameTick,
		FromAddress:   player.LocalAddress,
		Subject:       subject,
		Kind:          kind,
		Visible:       true,
	})
}

// deleteLogs applies a Log_Deleter completion by version:
// v1 the oldest visible log, v2 the chosen log, v3 every visible log,
// v4 and above every log, which is also hidden from the log screen.
func deleteLogs(ctx context.Context, tx storage.Tx, hostID int64, version int, logID int64) error {
	logs, err := tx.ListLogs(ctx, hostID)
	if err != nil {
		return err
	}

	for i := range logs {
		l := &logs[i]
		visible := l.Visible && !l.Deleted
		switch {
		case version >= 4:
			l.Deleted, l.Visible = true, false
		case version == 3 && visible:
			l.Deleted = true
		case version == 2 && l.ID == logID && visible:
			l.Deleted = true
		case version == 1 && visible:
			l.Deleted = true
		default:
			continue
		}
		if err := tx.UpdateLog(ctx, l); err != nil {
			return err
		}
		if version == 1 || version == 2 {
			return nil
		}
	}
	return nil
}

// undeleteLogs restores every deleted log on the host.
func undeleteLogs(ctx context.Context, tx storage.Tx, hostID int64) error {
	logs, err := tx.ListLogs(ctx, hostID)
	if err != nil {
		return err
	}
	for i := range logs {
		l := &logs[i]
		if !l.Deleted {
			continue
		}
		l.Deleted, l.Visible = false, true
		if err := tx.UpdateLog(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

// StopTask deactivates a task without applying its effect. Stopping an
// already inactive task is a no-op.
func (te *TaskEngine) StopTask(ctx context.Context, tx storage.Tx, sessionID string, taskID int64) error {
	task, err := tx.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.SessionID != sessionID {
		return domain.NewNotFoundError("task", taskID)
	}
	if !task.Active {
		return nil
	}
	task.Active = false
	return tx.UpdateTask(ctx, task)
}

// ActiveTasks lists the running tasks of a session.
func (te *TaskEngine) ActiveTasks(ctx context.Context, tx storage.Tx, sessionID string) ([]domain.RunningTask, error) {
	return tx.ListActiveTasks(ctx, sessionID)
}

func taskProgress(t domain.RunningTask) events.TaskProgress {
	p := events.TaskProgress{
		ID:             t.ID,
		Tool:           string(t.ToolName),
		Version:        t.ToolVersion,
		Target:         t.TargetAddress,
		Progress:       t.Progress,
		TicksRemaining: t.TicksRemaining,
		Revealed:       t.Params.Revealed,
	}
	if t.ToolName == domain.ToolTraceTracker {
		p.TraceReading = &events.TraceReading{Progress: t.Params.TraceProgress, Active: t.Params.TraceActive}
	}
	return p
}
