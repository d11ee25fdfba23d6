package world

import (
	"context"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

// Generator populates the world of a new session. It runs once, inside the
// transaction that creates the session.
type Generator interface {
	Generate(ctx context.Context, tx storage.Tx, session *domain.Session, player *domain.Player) error
}

// SeedGenerator copies a Seed into every new session.
type SeedGenerator struct {
	seed *Seed
}

// NewSeedGenerator creates a generator from a validated seed.
func NewSeedGenerator(seed *Seed) *SeedGenerator {
	return &SeedGenerator{seed: seed}
}

// Seed exposes the seed, for the news wire and mission employers.
func (g *SeedGenerator) Seed() *Seed {
	return g.seed
}

// Generate installs the player's gateway and every seeded host.
func (g *SeedGenerator) Generate(ctx context.Context, tx storage.Tx, session *domain.Session, player *domain.Player) error {
	if err := g.installGateway(ctx, tx, session, player); err != nil {
		return err
	}
	for _, hs := range g.seed.Hosts {
		if err := installHost(ctx, tx, session.ID, hs); err != nil {
			return err
		}
	}
	return nil
}

func (g *SeedGenerator) installGateway(ctx context.Context, tx storage.Tx, session *domain.Session, player *domain.Player) error {
	home := &domain.TargetHost{
		SessionID: session.ID,
		Name:      player.Handle + " Gateway",
		Address:   g.seed.Gateway.Address,
		Kind:      domain.HostKindGateway,
	}
	if err := tx.CreateHost(ctx, home); err != nil {
		return err
	}
	for _, sw := range g.seed.Gateway.Software {
		f := &domain.DataFile{
			HostID:  home.ID,
			Name:    sw.Tool,
			Size:    sw.Size,
			Kind:    domain.FileSoftware,
			Version: sw.Version,
			Owner:   player.Handle,
		}
		if err := tx.CreateFile(ctx, f); err != nil {
			return err
		}
	}

	player.LocalAddress = home.Address
	return tx.UpdatePlayer(ctx, player)
}

func installHost(ctx context.Context, tx storage.Tx, sessionID string, hs HostSeed) error {
	host := &domain.TargetHost{
		SessionID:      sessionID,
		Name:           hs.Name,
		Address:        hs.Address,
		Kind:           hostKinds[hs.Kind],
		TraceSpeed:     hs.TraceSpeed,
		HackDifficulty: hs.HackDifficulty,
	}
	if err := tx.CreateHost(ctx, host); err != nil {
		return err
	}

	for _, sc := range hs.Screens {
		screen := &domain.ScreenDefinition{
			HostID:     host.ID,
			ScreenType: domain.ScreenType(sc.Type),
			SubPage:    sc.SubPage,
			NextPage:   sc.NextPage,
			Title:      sc.Title,
			Data1:      sc.Data1,
			Data2:      sc.Data2,
			Data3:      sc.Data3,
		}
		if err := tx.CreateScreen(ctx, screen); err != nil {
			return err
		}
	}
	for _, sec := range hs.Security {
		sys := &domain.SecuritySystem{HostID: host.ID, Kind: securityKinds[sec.Kind], Level: sec.Level, Active: true}
		if err := tx.CreateSecuritySystem(ctx, sys); err != nil {
			return err
		}
	}
	for _, fs := range hs.Files {
		f := &domain.DataFile{
			HostID:    host.ID,
			Name:      fs.Name,
			Size:      fs.Size,
			Kind:      domain.FileData,
			Version:   1,
			Encrypted: fs.Encrypted,
			Owner:     fs.Owner,
		}
		if err := tx.CreateFile(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
