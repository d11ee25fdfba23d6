package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

// ErrNoWorld is returned by CreateSession when no world generator is configured.
var ErrNoWorld = errors.New("no world generator configured")

// CreateSession starts a new game: session, player, gateway, world and the
// recurring housekeeping events.
func (e *Engine) CreateSession(ctx context.Context, accountRef, handle string) (*domain.Session, *domain.Player, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, nil, domain.NewValidationError("handle is required")
	}
	if e.world == nil {
		return nil, nil, ErrNoWorld
	}

	session := &domain.Session{
		ID:         uuid.NewString(),
		AccountRef: accountRef,
		Speed:      domain.SpeedNormal,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	player := &domain.Player{Handle: handle, Balance: e.startingBalance}

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		player.SessionID = session.ID
		if err := tx.CreatePlayer(ctx, player); err != nil {
			return err
		}
		gw := &domain.Gateway{PlayerID: player.ID, CPUSpeed: BaseCPUSpeed, ModemSpeed: 1, MemorySize: 24}
		if err := tx.CreateGateway(ctx, gw); err != nil {
			return err
		}
		player.GatewayID = gw.ID
		if err := tx.UpdatePlayer(ctx, player); err != nil {
			return err
		}

		if err := e.world.Generate(ctx, tx, session, player); err != nil {
			return fmt.Errorf("failed to generate world: %w", err)
		}
		if _, err := tx.EnsureConnection(ctx, session.ID, player.ID); err != nil {
			return err
		}
		return e.scheduler.ScheduleInitialEvents(ctx, tx, session.ID, session.GameTick)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Event("SESSION_CREATED", session.ID, "handle "+handle)
	return session, player, nil
}

// activePlayer loads a session that is still in play and its player.
func activePlayer(ctx context.Context, tx storage.Tx, sessionID string) (*domain.Session, *domain.Player, error) {
	s, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !s.Active {
		return nil, nil, domain.NewValidationError("session is over")
	}
	p, err := tx.GetPlayerBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return s, p, nil
}

// Status returns the session snapshot, from the cache when possible.
func (e *Engine) Status(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	if e.cache != nil {
		if status, err := e.cache.Get(ctx, sessionID); err == nil {
			return status, nil
		}
	}

	var status domain.SessionStatus
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		s, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		status, err = e.sessionStatus(ctx, tx, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// SetSpeed changes the session's speed multiplier; 0 pauses it.
func (e *Engine) SetSpeed(ctx context.Context, sessionID string, speed int) error {
	sp, err := domain.ParseSpeed(speed)
	if err != nil {
		return err
	}
	err = e.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, _, err := activePlayer(ctx, tx, sessionID); err != nil {
			return err
		}
		return tx.SetSessionSpeed(ctx, sessionID, sp)
	})
	return e.invalidate(ctx, sessionID, err)
}

// AddBounce appends address to the player's bounce chain.
func (e *Engine) AddBounce(ctx context.Context, sessionID, address string) (*domain.BounceNode, error) {
	var node *domain.BounceNode
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		node, err = e.connections.AddBounce(ctx, tx, sessionID, p.ID, address)
		return err
	})
	return node, err
}

// RemoveBounce drops the hop at position.
func (e *Engine) RemoveBounce(ctx context.Context, sessionID string, position int) error {
	return e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		return e.connections.RemoveBounce(ctx, tx, sessionID, p.ID, position)
	})
}

// BounceChain lists the player's chain.
func (e *Engine) BounceChain(ctx context.Context, sessionID string) ([]domain.BounceNode, error) {
	var nodes []domain.BounceNode
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		p, err := tx.GetPlayerBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		nodes, err = e.connections.BounceChain(ctx, tx, sessionID, p.ID)
		return err
	})
	return nodes, err
}

// Connect opens a connection through the bounce chain.
func (e *Engine) Connect(ctx context.Context, sessionID string) (*ScreenData, error) {
	var data *ScreenData
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		data, err = e.connections.Connect(ctx, tx, sessionID, p.ID)
		return err
	})
	return data, e.invalidate(ctx, sessionID, err)
}

// Disconnect closes the player's connection.
func (e *Engine) Disconnect(ctx context.Context, sessionID string) error {
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		return e.connections.Disconnect(ctx, tx, sessionID, p.ID)
	})
	return e.invalidate(ctx, sessionID, err)
}

// Screen renders the screen the player is on.
func (e *Engine) Screen(ctx context.Context, sessionID string) (*ScreenData, error) {
	var data *ScreenData
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		data, err = e.connections.CurrentScreen(ctx, tx, sessionID, p.ID)
		return err
	})
	return data, err
}

// ScreenAction applies a named action to the current screen.
func (e *Engine) ScreenAction(ctx context.Context, sessionID, action string, input ScreenInput) (*ScreenData, error) {
	a, err := ParseScreenAction(action)
	if err != nil {
		return nil, err
	}
	var data *ScreenData
	err = e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		data, err = e.connections.HandleScreenAction(ctx, tx, sessionID, p.ID, a, input)
		return err
	})
	return data, err
}

// StartTask runs a tool against a target.
func (e *Engine) StartTask(ctx context.Context, sessionID, tool string, version int, target string, params domain.TaskParams) (*domain.RunningTask, error) {
	var task *domain.RunningTask
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		params.Revealed = ""
		task, err = e.tasks.StartTask(ctx, tx, sessionID, p.ID, domain.Tool(tool), version, target, params)
		return err
	})
	return task, err
}

// StopTask halts a task without applying its effect.
func (e *Engine) StopTask(ctx context.Context, sessionID string, taskID int64) error {
	return e.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, _, err := activePlayer(ctx, tx, sessionID); err != nil {
			return err
		}
		return e.tasks.StopTask(ctx, tx, sessionID, taskID)
	})
}

// ListTasks lists the session's running tasks.
func (e *Engine) ListTasks(ctx context.Context, sessionID string) ([]domain.RunningTask, error) {
	var tasks []domain.RunningTask
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return err
		}
		var err error
		tasks, err = e.tasks.ActiveTasks(ctx, tx, sessionID)
		return err
	})
	return tasks, err
}

// AcceptMission takes a contract from the mission board.
func (e *Engine) AcceptMission(ctx context.Context, sessionID string, missionID int64) (*domain.Mission, error) {
	var m *domain.Mission
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		m, err = AcceptMission(ctx, tx, sessionID, p, missionID)
		return err
	})
	return m, err
}

// ListMissions lists every mission of the session, open or taken.
func (e *Engine) ListMissions(ctx context.Context, sessionID string) ([]domain.Mission, error) {
	var missions []domain.Mission
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return err
		}
		var err error
		missions, err = tx.ListMissions(ctx, sessionID)
		return err
	})
	return missions, err
}

// ListMessages lists the player's inbox, oldest first.
func (e *Engine) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		p, err := tx.GetPlayerBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		msgs, err = tx.ListMessages(ctx, p.ID)
		return err
	})
	return msgs, err
}

// ScheduleEvent queues an event directly.
func (e *Engine) ScheduleEvent(ctx context.Context, sessionID, kind string, triggerTick int64, payload domain.EventPayload) (*domain.ScheduledEvent, error) {
	var ev *domain.ScheduledEvent
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, _, err := activePlayer(ctx, tx, sessionID); err != nil {
			return err
		}
		var err error
		ev, err = e.scheduler.Schedule(ctx, tx, sessionID, domain.EventKind(kind), triggerTick, payload)
		return err
	})
	return ev, err
}

// PendingEvents lists the events not yet fired.
func (e *Engine) PendingEvents(ctx context.Context, sessionID string) ([]domain.ScheduledEvent, error) {
	var pending []domain.ScheduledEvent
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		pending, err = tx.ListPendingEvents(ctx, sessionID)
		return err
	})
	return pending, err
}

// BuySoftware installs a catalog tool on the player's gateway.
func (e *Engine) BuySoftware(ctx context.Context, sessionID, tool string, version int) (*domain.DataFile, error) {
	item, ok := findSoftware(domain.Tool(tool), version)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("%s v%d is not for sale", tool, version))
	}
	var file *domain.DataFile
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if err := charge(ctx, tx, p, item.Price); err != nil {
			return err
		}
		home, err := tx.GetHostByAddress(ctx, sessionID, p.LocalAddress)
		if err != nil {
			return err
		}
		file = &domain.DataFile{HostID: home.ID, Name: string(item.Tool), Size: item.Size, Kind: domain.FileSoftware, Version: item.Version, Owner: p.Handle}
		return tx.CreateFile(ctx, file)
	})
	return file, e.invalidate(ctx, sessionID, err)
}

// BuyHardware replaces the gateway CPU with a faster one.
func (e *Engine) BuyHardware(ctx context.Context, sessionID string, cpuSpeed int) (*domain.Gateway, error) {
	item, ok := findHardware(cpuSpeed)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("no CPU with speed %d is for sale", cpuSpeed))
	}
	var gw *domain.Gateway
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, p, err := activePlayer(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		gw, err = tx.GetGateway(ctx, p.GatewayID)
		if err != nil {
			return err
		}
		if gw.CPUSpeed >= item.CPUSpeed {
			return domain.NewValidationError("gateway already has an equal or faster CPU")
		}
		if err := charge(ctx, tx, p, item.Price); err != nil {
			return err
		}
		gw.CPUSpeed = item.CPUSpeed
		return tx.UpdateGateway(ctx, gw)
	})
	return gw, e.invalidate(ctx, sessionID, err)
}

// invalidate drops the cached snapshot after a successful command that changed
// it. It passes err through. It waits for the tick in flight so a snapshot
// read before the command committed cannot land after the eviction.
func (e *Engine) invalidate(ctx context.Context, sessionID string, err error) error {
	if err != nil || e.cache == nil {
		return err
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if cerr := e.cache.Invalidate(ctx, sessionID); cerr != nil {
		e.logger.Warnf("Status cache invalidate failed for %s: %v", sessionID, cerr)
	}
	return nil
}

func charge(ctx context.Context, tx storage.Tx, p *domain.Player, price int64) error {
	if p.Balance < price {
		return domain.NewValidationError(fmt.Sprintf("insufficient funds: %dc needed", price))
	}
	p.Debit(price)
	return tx.UpdatePlayer(ctx, p)
}
