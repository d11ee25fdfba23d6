package engine

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

// MissionGenerator posts new contracts on the mission board.
type MissionGenerator interface {
	Generate(ctx context.Context, tx storage.Tx, sessionID string, count, rating int, tick int64) ([]domain.Mission, error)
}

const (
	missionPaymentVariance = 0.3
	maxMissionsPerBatch    = 8
)

var missionBasePayment = map[domain.MissionKind]int64{
	domain.MissionStealFile:   900,
	domain.MissionDestroyFile: 800,
	domain.MissionFindData:    1000,
	domain.MissionChangeData:  1000,
}

// BasicMissionGenerator picks uniformly among hosts that hold data files.
type BasicMissionGenerator struct {
	rng       *rand.Rand
	employers []string
}

// NewBasicMissionGenerator creates a generator. A nil rng seeds from the runtime.
func NewBasicMissionGenerator(rng *rand.Rand, employers []string) *BasicMissionGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if len(employers) == 0 {
		employers = []string{"Anonymous"}
	}
	return &BasicMissionGenerator{rng: rng, employers: employers}
}

type missionCandidate struct {
	host domain.TargetHost
	file domain.DataFile
}

// Generate creates up to count missions against data files in the world.
func (g *BasicMissionGenerator) Generate(ctx context.Context, tx storage.Tx, sessionID string, count, rating int, tick int64) ([]domain.Mission, error) {
	hosts, err := tx.ListHosts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var candidates []missionCandidate
	for _, h := range hosts {
		if h.Kind == domain.HostKindGateway {
			continue
		}
		files, err := tx.ListFiles(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Kind == domain.FileData {
				candidates = append(candidates, missionCandidate{host: h, file: f})
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	kinds := []domain.MissionKind{domain.MissionStealFile, domain.MissionDestroyFile}
	missions := make([]domain.Mission, 0, count)
	for i := 0; i < count; i++ {
		c := candidates[g.rng.IntN(len(candidates))]
		kind := kinds[g.rng.IntN(len(kinds))]

		variance := 1 + (g.rng.Float64()*2-1)*missionPaymentVariance
		difficulty := 1 + int(c.host.HackDifficulty/100)

		m := domain.Mission{
			SessionID:     sessionID,
			Kind:          kind,
			Employer:      g.employers[g.rng.IntN(len(g.employers))],
			Payment:       int64(float64(missionBasePayment[kind]*int64(difficulty)) * variance),
			Difficulty:    difficulty,
			MinRating:     max(0, min(rating, difficulty-1)),
			TargetAddress: c.host.Address,
			TargetFile:    c.file.Name,
			CreatedAtTick: tick,
		}
		m.Description = missionDescription(m, c.host.Name)

		if err := tx.CreateMission(ctx, &m); err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, nil
}

func missionDescription(m domain.Mission, hostName string) string {
	switch m.Kind {
	case domain.MissionStealFile:
		return fmt.Sprintf("Copy %s from %s", m.TargetFile, hostName)
	case domain.MissionDestroyFile:
		return fmt.Sprintf("Delete %s on %s", m.TargetFile, hostName)
	default:
		return fmt.Sprintf("Work on %s", hostName)
	}
}

// AcceptMission assigns an open mission to a player.
func AcceptMission(ctx context.Context, tx storage.Tx, sessionID string, player *domain.Player, missionID int64) (*domain.Mission, error) {
	m, err := tx.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.SessionID != sessionID {
		return nil, domain.NewNotFoundError("mission", missionID)
	}
	if m.Accepted {
		return nil, domain.NewValidationError("mission is already accepted")
	}
	if player.UpRating < m.MinRating {
		return nil, domain.NewValidationError(fmt.Sprintf("mission requires rating %d", m.MinRating))
	}

	m.Accepted = true
	m.AcceptedBy = &player.ID
	if err := tx.UpdateMission(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// completeMissions pays out every accepted mission the finished task satisfies.
func completeMissions(ctx context.Context, tx storage.Tx, player *domain.Player, task *domain.RunningTask, fileName string) (int64, []domain.Message, error) {
	missions, err := tx.ListMissions(ctx, task.SessionID)
	if err != nil {
		return 0, nil, err
	}
	session, err := tx.GetSession(ctx, task.SessionID)
	if err != nil {
		return 0, nil, err
	}

	var paid int64
	var messages []domain.Message
	for i := range missions {
		m := &missions[i]
		tool, ok := m.Kind.CompletedBy()
		if !ok || tool != task.ToolName || !m.Accepted || m.Completed {
			continue
		}
		if m.AcceptedBy == nil || *m.AcceptedBy != player.ID {
			continue
		}
		if m.TargetAddress != task.TargetAddress || m.TargetFile != fileName {
			continue
		}

		m.Completed = true
		if err := tx.UpdateMission(ctx, m); err != nil {
			return 0, nil, err
		}
		player.Credit(m.Payment)
		player.UpRating++
		paid += m.Payment

		msg := domain.Message{
			SessionID:     task.SessionID,
			PlayerID:      player.ID,
			From:          m.Employer,
			Subject:       "Mission completed",
			Body:          fmt.Sprintf("%s. %dc has been transferred to your account.", m.Description, m.Payment),
			CreatedAtTick: session.GameTick,
		}
		if err := tx.CreateMessage(ctx, &msg); err != nil {
			return 0, nil, err
		}
		messages = append(messages, msg)
	}

	if paid > 0 {
		if err := tx.UpdatePlayer(ctx, player); err != nil {
			return 0, nil, err
		}
	}
	return paid, messages, nil
}
