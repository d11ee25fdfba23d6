package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/metrics"
	"github.com/MRamiBalles/uplink-sim/server/internal/world"
)

// StatusCache holds session snapshots for fast reads. The store stays authoritative.
type StatusCache interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionStatus, error)
	PutMany(ctx context.Context, statuses []domain.SessionStatus) error
	Invalidate(ctx context.Context, sessionID string) error
}

// Engine is the tick scheduler: it owns the clock and drives every system
// over every active session.
type Engine struct {
	store   storage.Store
	sink    events.Sink
	cache   StatusCache
	logger  *logger.Logger
	metrics *metrics.Collector
	ticker  *Ticker

	world           world.Generator
	missionGen      MissionGenerator
	startingBalance int64
	interval        time.Duration

	// Sub-systems
	tasks       *TaskEngine
	traces      *TraceEngine
	security    *SecurityEngine
	scheduler   *EventScheduler
	connections *ConnectionManager
	subsystems  []Subsystem

	tickMu  sync.Mutex
	started atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache publishes a status snapshot of every ticked session after commit.
func WithCache(c StatusCache) Option { return func(e *Engine) { e.cache = c } }

// WithMetrics records tick and notification metrics.
func WithMetrics(m *metrics.Collector) Option { return func(e *Engine) { e.metrics = m } }

// WithWorld sets the generator used to populate new sessions.
func WithWorld(g world.Generator) Option { return func(e *Engine) { e.world = g } }

// WithMissionGenerator replaces the default mission generator.
func WithMissionGenerator(g MissionGenerator) Option { return func(e *Engine) { e.missionGen = g } }

// WithSubsystems adds optional periodic subsystems.
func WithSubsystems(s ...Subsystem) Option {
	return func(e *Engine) { e.subsystems = append(e.subsystems, s...) }
}

// WithStartingBalance sets the credits a new player starts with.
func WithStartingBalance(n int64) Option { return func(e *Engine) { e.startingBalance = n } }

// WithTickInterval overrides TickInterval. Used by load tests.
func WithTickInterval(d time.Duration) Option { return func(e *Engine) { e.interval = d } }

// NewEngine wires the simulation systems around a store and a notification sink.
func NewEngine(store storage.Store, sink events.Sink, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		sink:            sink,
		logger:          log,
		startingBalance: 3000,
		interval:        TickInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.missionGen == nil {
		e.missionGen = NewBasicMissionGenerator(nil, nil)
	}

	e.tasks = NewTaskEngine(log)
	e.traces = NewTraceEngine(log)
	e.security = NewSecurityEngine(e.traces, log)
	e.scheduler = NewEventScheduler(e.missionGen, log, e.metrics)
	e.connections = NewConnectionManager(log)
	e.ticker = NewTicker(e.interval, e.Tick, log)

	available := e.subsystems[:0]
	for _, s := range e.subsystems {
		if !s.Available() {
			log.Warnf("Subsystem %s unavailable, disabled", s.Name())
			continue
		}
		log.Infof("Subsystem %s enabled every %d ticks", s.Name(), s.Interval())
		available = append(available, s)
	}
	e.subsystems = available

	return e
}

// Start spawns the ticker. Later calls are no-ops.
func (e *Engine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.logger.Info("Starting simulation engine...")
	go e.ticker.Start(ctx)
}

// Stop halts the ticker and waits for the tick in flight to commit.
func (e *Engine) Stop() {
	if !e.started.Load() {
		return
	}
	e.ticker.Stop()
	e.logger.Info("Simulation engine stopped.")
}

type sessionResult struct {
	status   domain.SessionStatus
	gameOver bool
}

// Tick runs one simulation step over every active session. Ticks never overlap.
func (e *Engine) Tick(ctx context.Context, tickNumber int64) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	out := events.NewOutbox()
	var statuses []domain.SessionStatus
	var ended []string
	ticked := 0

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		sessions, err := tx.ListActiveSessions(ctx)
		if err != nil {
			return err
		}
		for i := range sessions {
			s := &sessions[i]
			if s.Speed.Paused() {
				continue
			}

			local := events.NewOutbox()
			var res sessionResult
			err := tx.Savepoint(ctx, "session_tick", func() error {
				var err error
				res, err = e.tickSession(ctx, tx, s, tickNumber, local)
				return err
			})
			if err != nil {
				e.logger.With(logger.Fields{"session": s.ID, "tick": tickNumber}).
					Errorf("Session tick failed, rolled back: %v", err)
				e.metrics.RecordSessionFailure()
				continue
			}

			ticked++
			out.Merge(local)
			if res.gameOver {
				ended = append(ended, s.ID)
			} else {
				statuses = append(statuses, res.status)
			}
		}
		return nil
	})
	if err != nil {
		e.logger.Errorf("Tick %d aborted: %v", tickNumber, err)
		e.metrics.RecordSessionFailure()
		return
	}

	sent, dropped := out.Flush(e.sink, func(sessionID string, n events.Notification, err error) {
		e.logger.With(logger.Fields{"session": sessionID, "kind": n.Kind}).Debug("notification dropped: " + err.Error())
	})
	e.metrics.RecordNotifications(sent, dropped)
	e.metrics.RecordTick(time.Since(start), ticked)
	e.refreshCache(ctx, statuses, ended)
}

// tickSession advances one session in the fixed order
// tasks, traces, scan, consequences, subsystems, clock, due events.
func (e *Engine) tickSession(ctx context.Context, tx storage.Tx, s *domain.Session, tickNumber int64, out *events.Outbox) (sessionResult, error) {
	var res sessionResult

	if err := e.advanceTasks(ctx, tx, s, out); err != nil {
		return res, err
	}

	updates, err := e.traces.Advance(ctx, tx, s.Speed, s.ID)
	if err != nil {
		return res, err
	}
	for _, u := range updates {
		out.Add(s.ID, events.KindTraceUpdate, events.TraceUpdate{Progress: u.Progress, Active: u.Active, TracedNodes: u.TracedAddresses})
	}

	if tickNumber%SecurityScanInterval == 0 {
		started, err := e.security.ScanBreaches(ctx, tx, s.ID)
		if err != nil {
			return res, err
		}
		for _, st := range started {
			out.Add(s.ID, events.KindTraceStarted, st)
		}
	}

	captures, err := e.traces.CheckCompletions(ctx, tx, s.ID)
	if err != nil {
		return res, err
	}
	for _, c := range captures {
		host, err := tx.GetHostByAddress(ctx, s.ID, c.TargetAddress)
		if err != nil {
			return res, err
		}
		if _, err := e.scheduler.ScheduleTraceConsequences(ctx, tx, s.ID, host.Name, s.GameTick, host.HackDifficulty); err != nil {
			return res, err
		}
		out.Add(s.ID, events.KindTraceComplete, events.TraceComplete{Reason: c.Reason})
	}

	for _, sub := range e.subsystems {
		if tickNumber%sub.Interval() != 0 {
			continue
		}
		if err := sub.Run(ctx, tx, s, out); err != nil {
			return res, err
		}
	}

	s.GameTick += int64(s.Speed)
	if err := tx.SetSessionTick(ctx, s.ID, s.GameTick); err != nil {
		return res, err
	}

	over, err := e.scheduler.ProcessDue(ctx, tx, s.ID, s.GameTick, out)
	if err != nil {
		return res, err
	}
	if over {
		res.gameOver = true
		return res, nil
	}
	out.Add(s.ID, events.KindGameTime, events.GameTime{Ticks: s.GameTick, Speed: int(s.Speed)})

	res.status, err = e.sessionStatus(ctx, tx, s)
	return res, err
}

func (e *Engine) advanceTasks(ctx context.Context, tx storage.Tx, s *domain.Session, out *events.Outbox) error {
	tasks, err := e.tasks.ActiveTasks(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	progress := make([]events.TaskProgress, 0, len(tasks))
	var completed []TaskResult
	for _, t := range tasks {
		r, err := e.tasks.Advance(ctx, tx, t, s.Speed)
		if err != nil {
			return err
		}
		progress = append(progress, taskProgress(r.Task))
		if r.Completed {
			completed = append(completed, r)
		}
	}

	out.Add(s.ID, events.KindTaskUpdate, events.TaskUpdate{Tasks: progress})
	for _, r := range completed {
		out.Add(s.ID, events.KindTaskComplete, events.TaskComplete{Task: taskProgress(r.Task)})
		for _, m := range r.Messages {
			out.Add(s.ID, events.KindMessageReceived, events.MessageReceived{Subject: m.Subject})
		}
		if r.Payout > 0 {
			out.Add(s.ID, events.KindBalanceChanged, events.BalanceChanged{Balance: r.Balance})
		}
	}
	return nil
}

func (e *Engine) sessionStatus(ctx context.Context, tx storage.Tx, s *domain.Session) (domain.SessionStatus, error) {
	status := domain.SessionStatus{SessionID: s.ID, GameTick: s.GameTick, Speed: s.Speed, Active: s.Active}

	player, err := tx.GetPlayerBySession(ctx, s.ID)
	if err != nil {
		return status, err
	}
	status.Balance = player.Balance
	status.UpRating = player.UpRating

	conn, err := tx.EnsureConnection(ctx, s.ID, player.ID)
	if err != nil {
		return status, err
	}
	status.Connected = conn.Active
	if conn.Active {
		status.TargetAddress = conn.TargetAddress
	}
	status.TraceActive = conn.TraceActive
	status.TraceProgress = conn.TraceProgress
	return status, nil
}

// refreshCache runs with tickMu held.
func (e *Engine) refreshCache(ctx context.Context, statuses []domain.SessionStatus, ended []string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.PutMany(ctx, statuses); err != nil {
		e.logger.Warnf("Status cache write failed: %v", err)
	}
	for _, id := range ended {
		if err := e.cache.Invalidate(ctx, id); err != nil {
			e.logger.Warnf("Status cache invalidate failed for %s: %v", id, err)
		}
	}
}
