package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/world"
)

// Addresses from the built-in world seed.
const (
	publicServer = "234.773.0.666"
	internic     = "458.615.48.651"
	testMachine  = "128.185.0.4" // password rosebud, trace speed 5, difficulty 10
	government   = "401.101.5.8" // high security TR1NITY, difficulty 400
)

type fakeSink struct {
	mu   sync.Mutex
	sent map[string][]events.Notification
	fail bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{sent: make(map[string][]events.Notification)}
}

func (f *fakeSink) Send(sessionID string, n events.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("client gone")
	}
	f.sent[sessionID] = append(f.sent[sessionID], n)
	return nil
}

func (f *fakeSink) of(sessionID string, kind events.Kind) []events.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Notification
	for _, n := range f.sent[sessionID] {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = make(map[string][]events.Notification)
}

func openTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *storage.SQLiteStore, *fakeSink) {
	t.Helper()

	seed, err := world.LoadSeed("")
	require.NoError(t, err)

	store := openTestStore(t)
	sink := newFakeSink()
	base := []Option{
		WithWorld(world.NewSeedGenerator(seed)),
		WithMissionGenerator(NewBasicMissionGenerator(rand.New(rand.NewPCG(1, 2)), seed.Employers)),
	}
	eng := NewEngine(store, sink, logger.Discard(), append(base, opts...)...)
	return eng, store, sink
}

type fixture struct {
	eng     *Engine
	store   *storage.SQLiteStore
	sink    *fakeSink
	session *domain.Session
	player  *domain.Player
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	eng, store, sink := newTestEngine(t, opts...)
	s, p, err := eng.CreateSession(context.Background(), "acct-1", "neo")
	require.NoError(t, err)
	return &fixture{eng: eng, store: store, sink: sink, session: s, player: p}
}

// tx runs fn in a committed transaction and fails the test on error.
func (f *fixture) tx(t *testing.T, fn func(tx storage.Tx)) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(tx storage.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) host(t *testing.T, tx storage.Tx, address string) *domain.TargetHost {
	t.Helper()
	h, err := tx.GetHostByAddress(context.Background(), f.session.ID, address)
	require.NoError(t, err)
	return h
}

func (f *fixture) file(t *testing.T, tx storage.Tx, address, name string) *domain.DataFile {
	t.Helper()
	files, err := tx.ListFiles(context.Background(), f.host(t, tx, address).ID)
	require.NoError(t, err)
	for i := range files {
		if files[i].Name == name {
			return &files[i]
		}
	}
	t.Fatalf("file %s not found on %s", name, address)
	return nil
}

func (f *fixture) connection(t *testing.T, tx storage.Tx) *domain.Connection {
	t.Helper()
	conn, err := tx.EnsureConnection(context.Background(), f.session.ID, f.player.ID)
	require.NoError(t, err)
	return conn
}

func (f *fixture) reloadPlayer(t *testing.T) *domain.Player {
	t.Helper()
	var p *domain.Player
	f.tx(t, func(tx storage.Tx) {
		var err error
		p, err = tx.GetPlayer(context.Background(), f.player.ID)
		require.NoError(t, err)
	})
	return p
}

func (f *fixture) connectThrough(t *testing.T, addresses ...string) *ScreenData {
	t.Helper()
	ctx := context.Background()
	for _, a := range addresses {
		_, err := f.eng.AddBounce(ctx, f.session.ID, a)
		require.NoError(t, err)
	}
	data, err := f.eng.Connect(ctx, f.session.ID)
	require.NoError(t, err)
	return data
}

func (f *fixture) setBalance(t *testing.T, balance int64) {
	t.Helper()
	f.tx(t, func(tx storage.Tx) {
		p, err := tx.GetPlayer(context.Background(), f.player.ID)
		require.NoError(t, err)
		p.Balance = balance
		require.NoError(t, tx.UpdatePlayer(context.Background(), p))
	})
}
