// Package storage provides the transactional persistence layer of the simulation.
// The engine depends on the Store/Tx interfaces; the SQLite implementation lives beside them.
package storage

import (
	"context"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
)

// Store runs units of work. Every mutation of simulation state happens
// inside exactly one WithTx call: it commits when fn returns nil and rolls
// back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of queries available inside a transaction.
// Getters return a domain.NotFoundError when the row does not exist.
type Tx interface {
	// Savepoint runs fn inside a nested savepoint. When fn fails only its
	// own writes are rolled back and the enclosing transaction continues.
	Savepoint(ctx context.Context, name string, fn func() error) error

	SessionRepository
	WorldRepository
	ConnectionRepository
	TaskRepository
	EventRepository
	ContentRepository
}

// SessionRepository persists sessions, players and gateways.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListActiveSessions(ctx context.Context) ([]domain.Session, error)
	SetSessionTick(ctx context.Context, id string, tick int64) error
	SetSessionSpeed(ctx context.Context, id string, speed domain.Speed) error
	DeactivateSession(ctx context.Context, id string) error

	CreatePlayer(ctx context.Context, p *domain.Player) error
	GetPlayer(ctx context.Context, id int64) (*domain.Player, error)
	GetPlayerBySession(ctx context.Context, sessionID string) (*domain.Player, error)
	UpdatePlayer(ctx context.Context, p *domain.Player) error

	CreateGateway(ctx context.Context, g *domain.Gateway) error
	GetGateway(ctx context.Context, id int64) (*domain.Gateway, error)
	UpdateGateway(ctx context.Context, g *domain.Gateway) error
}

// WorldRepository persists hosts and everything installed on them.
type WorldRepository interface {
	CreateHost(ctx context.Context, h *domain.TargetHost) error
	GetHost(ctx context.Context, id int64) (*domain.TargetHost, error)
	GetHostByAddress(ctx context.Context, sessionID, address string) (*domain.TargetHost, error)
	ListHosts(ctx context.Context, sessionID string) ([]domain.TargetHost, error)

	CreateScreen(ctx context.Context, s *domain.ScreenDefinition) error
	GetScreen(ctx context.Context, id int64) (*domain.ScreenDefinition, error)
	ListScreens(ctx context.Context, hostID int64) ([]domain.ScreenDefinition, error)

	CreateSecuritySystem(ctx context.Context, s *domain.SecuritySystem) error
	ListSecuritySystems(ctx context.Context, hostID int64) ([]domain.SecuritySystem, error)
	UpdateSecuritySystem(ctx context.Context, s *domain.SecuritySystem) error

	CreateFile(ctx context.Context, f *domain.DataFile) error
	GetFile(ctx context.Context, id int64) (*domain.DataFile, error)
	ListFiles(ctx context.Context, hostID int64) ([]domain.DataFile, error)
	UpdateFile(ctx context.Context, f *domain.DataFile) error
	DeleteFile(ctx context.Context, id int64) error

	CreateLog(ctx context.Context, l *domain.AccessLog) error
	ListLogs(ctx context.Context, hostID int64) ([]domain.AccessLog, error)
	UpdateLog(ctx context.Context, l *domain.AccessLog) error
	DeleteLogsBefore(ctx context.Context, sessionID string, tick int64) (int64, error)
}

// ConnectionRepository persists the player's connection and bounce chain.
type ConnectionRepository interface {
	// EnsureConnection returns the player's connection, creating an
	// inactive one on first use.
	EnsureConnection(ctx context.Context, sessionID string, playerID int64) (*domain.Connection, error)
	UpdateConnection(ctx context.Context, c *domain.Connection) error
	ListActiveConnections(ctx context.Context, sessionID string) ([]domain.Connection, error)
	ListTracingConnections(ctx context.Context, sessionID string) ([]domain.Connection, error)

	ListBounceNodes(ctx context.Context, connectionID int64) ([]domain.BounceNode, error)
	AddBounceNode(ctx context.Context, n *domain.BounceNode) error
	UpdateBounceNode(ctx context.Context, n *domain.BounceNode) error
	DeleteBounceNode(ctx context.Context, id int64) error
}

// TaskRepository persists running tasks.
type TaskRepository interface {
	CreateTask(ctx context.Context, t *domain.RunningTask) error
	GetTask(ctx context.Context, id int64) (*domain.RunningTask, error)
	UpdateTask(ctx context.Context, t *domain.RunningTask) error
	ListActiveTasks(ctx context.Context, sessionID string) ([]domain.RunningTask, error)
}

// EventRepository persists scheduled consequences.
type EventRepository interface {
	CreateEvent(ctx context.Context, e *domain.ScheduledEvent) error
	// ListDueEvents returns unprocessed events with TriggerTick <= tick,
	// ordered by trigger tick then id.
	ListDueEvents(ctx context.Context, sessionID string, tick int64) ([]domain.ScheduledEvent, error)
	ListPendingEvents(ctx context.Context, sessionID string) ([]domain.ScheduledEvent, error)
	// MarkEventProcessed claims the event. It reports false when the event
	// was already processed, so an event is handled at most once.
	MarkEventProcessed(ctx context.Context, id int64) (bool, error)
}

// ContentRepository persists messages, missions and news.
type ContentRepository interface {
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, playerID int64) ([]domain.Message, error)

	CreateMission(ctx context.Context, m *domain.Mission) error
	GetMission(ctx context.Context, id int64) (*domain.Mission, error)
	UpdateMission(ctx context.Context, m *domain.Mission) error
	ListMissions(ctx context.Context, sessionID string) ([]domain.Mission, error)
	DeleteMissionsBefore(ctx context.Context, sessionID string, tick int64) (int64, error)

	CreateNews(ctx context.Context, n *domain.NewsArticle) error
	ListNews(ctx context.Context, sessionID string) ([]domain.NewsArticle, error)
	DeleteNewsBefore(ctx context.Context, sessionID string, tick int64) (int64, error)
}
