package world

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

func TestSeedGeneratorPopulatesSession(t *testing.T) {
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	seed, err := LoadSeed("")
	require.NoError(t, err)
	gen := NewSeedGenerator(seed)
	ctx := context.Background()

	session := &domain.Session{ID: "s1", AccountRef: "acct", Speed: domain.SpeedNormal, Active: true, CreatedAt: time.Now().UTC()}
	player := &domain.Player{Handle: "neo", Balance: 3000}

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.CreateSession(ctx, session))
		player.SessionID = session.ID
		require.NoError(t, tx.CreatePlayer(ctx, player))
		return gen.Generate(ctx, tx, session, player)
	})
	require.NoError(t, err)
	assert.Equal(t, seed.Gateway.Address, player.LocalAddress)

	err = store.WithTx(ctx, func(tx storage.Tx) error {
		hosts, err := tx.ListHosts(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, hosts, len(seed.Hosts)+1)

		home, err := tx.GetHostByAddress(ctx, session.ID, seed.Gateway.Address)
		require.NoError(t, err)
		assert.Equal(t, domain.HostKindGateway, home.Kind)
		assert.False(t, home.Traceable())

		software, err := tx.ListFiles(ctx, home.ID)
		require.NoError(t, err)
		assert.Len(t, software, len(seed.Gateway.Software))

		test, err := tx.GetHostByAddress(ctx, session.ID, "128.185.0.4")
		require.NoError(t, err)
		screens, err := tx.ListScreens(ctx, test.ID)
		require.NoError(t, err)
		require.NotEmpty(t, screens)
		assert.Equal(t, domain.ScreenPassword, screens[0].ScreenType)

		systems, err := tx.ListSecuritySystems(ctx, test.ID)
		require.NoError(t, err)
		require.Len(t, systems, 1)
		assert.True(t, systems[0].Detects())
		return nil
	})
	require.NoError(t, err)
}
