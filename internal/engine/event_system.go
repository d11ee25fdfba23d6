package engine

import (
	"context"
	"fmt"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/metrics"
)

// TicksPerGameMinute converts game minutes into ticks.
const TicksPerGameMinute = 5

const (
	ticksPerHour = 60 * TicksPerGameMinute
	ticksPerDay  = 24 * ticksPerHour
)

// Consequence and housekeeping timings, in ticks.
const (
	HighSecurityThreshold = 200
	DefaultFineAmount     = 3000

	LegalActionDelay    = 180 * TicksPerGameMinute
	LegalWarningLead    = 2 * TicksPerGameMinute
	TacticalActionDelay = 5 * TicksPerGameMinute
	TacticalWarningLead = 1 * TicksPerGameMinute

	UplinkMonthlyFee        = 300
	UplinkBillingPeriod     = 30 * ticksPerDay
	ExpireSweepInterval     = 7 * ticksPerDay
	NewsMaxAge              = 30 * ticksPerDay
	MissionMaxAge           = 30 * ticksPerDay
	LogMaxAge               = 40 * ticksPerDay
	MissionGenerateInterval = 12 * ticksPerHour

	defaultMissionCount = 3
)

const (
	senderFederal = "Federal Investigation Bureau"
	senderUplink  = "Uplink Corporation"
)

var gameOverReasons = map[domain.EventKind]string{
	domain.EventArrest:         "arrested",
	domain.EventShotByFeds:     "shot_by_feds",
	domain.EventGatewaySeizure: "gateway_seized",
	domain.EventBankRobbery:    "caught_money_transfer",
}

// EventScheduler stores deferred consequences and fires them when due.
type EventScheduler struct {
	missions MissionGenerator
	logger   *logger.Logger
	metrics  *metrics.Collector
}

// NewEventScheduler creates a scheduler. metrics may be nil.
func NewEventScheduler(missions MissionGenerator, log *logger.Logger, m *metrics.Collector) *EventScheduler {
	return &EventScheduler{missions: missions, logger: log, metrics: m}
}

// Schedule inserts an event.
func (es *EventScheduler) Schedule(ctx context.Context, tx storage.Tx, sessionID string, kind domain.EventKind,
	triggerTick int64, payload domain.EventPayload) (*domain.ScheduledEvent, error) {

	if !kind.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown event kind %q", kind))
	}
	e := &domain.ScheduledEvent{SessionID: sessionID, Kind: kind, TriggerTick: triggerTick, Payload: payload}
	if err := tx.CreateEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ScheduleTraceConsequences queues the response to a completed trace.
// A warning always fires at currentTick; hosts at or above
// HighSecurityThreshold escalate to arrest and an armed response,
// anything softer ends in a fine.
func (es *EventScheduler) ScheduleTraceConsequences(ctx context.Context, tx storage.Tx, sessionID, targetName string,
	currentTick int64, hackDifficulty float64) ([]domain.ScheduledEvent, error) {

	type plan struct {
		kind    domain.EventKind
		tick    int64
		payload domain.EventPayload
	}
	target := domain.EventPayload{TargetName: targetName}
	steps := []plan{{domain.EventWarning, currentTick, target}}

	if hackDifficulty >= HighSecurityThreshold {
		arrestTick := currentTick + LegalActionDelay
		shotTick := arrestTick + TacticalActionDelay
		steps = append(steps,
			plan{domain.EventLegalWarning, arrestTick - LegalWarningLead, target},
			plan{domain.EventArrest, arrestTick, target},
			plan{domain.EventTacticalWarning, shotTick - TacticalWarningLead, target},
			plan{domain.EventShotByFeds, shotTick, target},
		)
	} else {
		steps = append(steps, plan{domain.EventFine, currentTick + LegalActionDelay,
			domain.EventPayload{TargetName: targetName, Amount: DefaultFineAmount}})
	}

	scheduled := make([]domain.ScheduledEvent, 0, len(steps))
	for _, s := range steps {
		e, err := es.Schedule(ctx, tx, sessionID, s.kind, s.tick, s.payload)
		if err != nil {
			return nil, err
		}
		scheduled = append(scheduled, *e)
	}
	es.logger.Event("CONSEQUENCES_SCHEDULED", sessionID, fmt.Sprintf("%d events for %s", len(scheduled), targetName))
	return scheduled, nil
}

// ScheduleInitialEvents queues the recurring housekeeping of a new session
// and a first batch of missions for the board.
func (es *EventScheduler) ScheduleInitialEvents(ctx context.Context, tx storage.Tx, sessionID string, startTick int64) error {
	if _, err := es.Schedule(ctx, tx, sessionID, domain.EventMissionGenerate, startTick, domain.EventPayload{Count: defaultMissionCount}); err != nil {
		return err
	}
	if _, err := es.Schedule(ctx, tx, sessionID, domain.EventUplinkFee, startTick+UplinkBillingPeriod, domain.EventPayload{}); err != nil {
		return err
	}
	if _, err := es.Schedule(ctx, tx, sessionID, domain.EventExpireOld, startTick+ExpireSweepInterval, domain.EventPayload{}); err != nil {
		return err
	}
	_, err := es.Schedule(ctx, tx, sessionID, domain.EventMissionGenerate, startTick+MissionGenerateInterval,
		domain.EventPayload{Count: defaultMissionCount, Recurring: true})
	return err
}

// ProcessDue fires every event due at currentTick in trigger order.
// It reports whether one of them ended the game.
func (es *EventScheduler) ProcessDue(ctx context.Context, tx storage.Tx, sessionID string, currentTick int64, out *events.Outbox) (bool, error) {
	due, err := tx.ListDueEvents(ctx, sessionID, currentTick)
	if err != nil {
		return false, err
	}

	gameOver := false
	for i := range due {
		e := &due[i]
		claimed, err := tx.MarkEventProcessed(ctx, e.ID)
		if err != nil {
			return gameOver, err
		}
		if !claimed || gameOver {
			continue
		}

		over, err := es.dispatch(ctx, tx, e, currentTick, out)
		if err != nil {
			return gameOver, fmt.Errorf("failed to process %s event %d: %w", e.Kind, e.ID, err)
		}
		gameOver = over
		es.metrics.RecordEvent(string(e.Kind))
	}
	return gameOver, nil
}

func (es *EventScheduler) dispatch(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, currentTick int64, out *events.Outbox) (bool, error) {
	switch e.Kind {
	case domain.EventWarning:
		return false, es.notify(ctx, tx, e.SessionID, currentTick, out, senderFederal,
			"Security Alert: Unauthorized access to "+e.Payload.TargetName,
			"Our records show your gateway was traced during an unauthorized connection. This incident is under investigation.")

	case domain.EventFine:
		return false, es.fine(ctx, tx, e, currentTick, out)

	case domain.EventLegalWarning:
		return false, es.notify(ctx, tx, e.SessionID, currentTick, out, senderFederal,
			"URGENT: Arrest Warrant Issued",
			"A warrant has been issued for your arrest following the intrusion into "+e.Payload.TargetName+".")

	case domain.EventTacticalWarning:
		return false, es.notify(ctx, tx, e.SessionID, currentTick, out, senderFederal,
			"CRITICAL: Armed Response Incoming",
			"Tactical units have been dispatched to your physical location.")

	case domain.EventArrest, domain.EventShotByFeds, domain.EventGatewaySeizure, domain.EventBankRobbery:
		return true, es.endGame(ctx, tx, e, currentTick, out)

	case domain.EventUplinkFee:
		return false, es.chargeUplinkFee(ctx, tx, e, currentTick, out)

	case domain.EventExpireOld:
		return false, es.expireOld(ctx, tx, e, currentTick)

	case domain.EventMissionGenerate:
		return false, es.generateMissions(ctx, tx, e, currentTick)

	default:
		return false, fmt.Errorf("no handler for event kind %q", e.Kind)
	}
}

// notify stores a message for the session's player and announces it.
func (es *EventScheduler) notify(ctx context.Context, tx storage.Tx, sessionID string, tick int64, out *events.Outbox,
	from, subject, body string) error {

	player, err := tx.GetPlayerBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	msg := &domain.Message{
		SessionID:     sessionID,
		PlayerID:      player.ID,
		From:          from,
		Subject:       subject,
		Body:          body,
		CreatedAtTick: tick,
	}
	if err := tx.CreateMessage(ctx, msg); err != nil {
		return err
	}
	out.Add(sessionID, events.KindMessageReceived, events.MessageReceived{Subject: subject})
	return nil
}

func (es *EventScheduler) fine(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, tick int64, out *events.Outbox) error {
	player, err := tx.GetPlayerBySession(ctx, e.SessionID)
	if err != nil {
		return err
	}
	amount := e.Payload.Amount
	taken := player.Debit(amount)
	if err := tx.UpdatePlayer(ctx, player); err != nil {
		return err
	}
	if err := es.notify(ctx, tx, e.SessionID, tick, out, senderFederal,
		fmt.Sprintf("Fine: %dc deducted", amount),
		fmt.Sprintf("You have been fined %dc for the intrusion into %s.", amount, e.Payload.TargetName)); err != nil {
		return err
	}
	out.Add(e.SessionID, events.KindBalanceChanged, events.BalanceChanged{Balance: player.Balance, Fine: &amount})
	es.logger.Event("FINE", e.SessionID, fmt.Sprintf("fined %d, took %d", amount, taken))
	return nil
}

func (es *EventScheduler) endGame(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, tick int64, out *events.Outbox) error {
	if e.Kind == domain.EventArrest {
		if err := es.notify(ctx, tx, e.SessionID, tick, out, senderFederal,
			"ARRESTED: Gateway Seized",
			"You have been arrested. Your gateway and all its contents have been seized."); err != nil {
			return err
		}
	}
	if err := tx.DeactivateSession(ctx, e.SessionID); err != nil {
		return err
	}
	reason := gameOverReasons[e.Kind]
	out.Add(e.SessionID, events.KindGameOver, events.GameOver{Reason: reason})
	es.logger.Event("GAME_OVER", e.SessionID, reason)
	return nil
}

func (es *EventScheduler) chargeUplinkFee(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, tick int64, out *events.Outbox) error {
	player, err := tx.GetPlayerBySession(ctx, e.SessionID)
	if err != nil {
		return err
	}
	player.Debit(UplinkMonthlyFee)
	if err := tx.UpdatePlayer(ctx, player); err != nil {
		return err
	}
	if err := es.notify(ctx, tx, e.SessionID, tick, out, senderUplink,
		fmt.Sprintf("Monthly Subscription: %dc", UplinkMonthlyFee),
		fmt.Sprintf("Your monthly Uplink subscription of %dc has been charged.", UplinkMonthlyFee)); err != nil {
		return err
	}
	out.Add(e.SessionID, events.KindBalanceChanged, events.BalanceChanged{Balance: player.Balance})

	_, err = es.Schedule(ctx, tx, e.SessionID, domain.EventUplinkFee, e.TriggerTick+UplinkBillingPeriod, domain.EventPayload{})
	return err
}

func (es *EventScheduler) expireOld(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, tick int64) error {
	logs, err := tx.DeleteLogsBefore(ctx, e.SessionID, tick-LogMaxAge)
	if err != nil {
		return err
	}
	news, err := tx.DeleteNewsBefore(ctx, e.SessionID, tick-NewsMaxAge)
	if err != nil {
		return err
	}
	missions, err := tx.DeleteMissionsBefore(ctx, e.SessionID, tick-MissionMaxAge)
	if err != nil {
		return err
	}
	es.logger.With(logger.Fields{"logs": logs, "news": news, "missions": missions}).
		Event("EXPIRE_OLD", e.SessionID, "swept stale records")

	_, err = es.Schedule(ctx, tx, e.SessionID, domain.EventExpireOld, e.TriggerTick+ExpireSweepInterval, domain.EventPayload{})
	return err
}

func (es *EventScheduler) generateMissions(ctx context.Context, tx storage.Tx, e *domain.ScheduledEvent, tick int64) error {
	player, err := tx.GetPlayerBySession(ctx, e.SessionID)
	if err != nil {
		return err
	}
	count := e.Payload.Count
	if count <= 0 {
		count = defaultMissionCount
	}
	count = min(maxMissionsPerBatch, count+player.UpRating/4)

	if es.missions != nil {
		if _, err := es.missions.Generate(ctx, tx, e.SessionID, count, player.UpRating, tick); err != nil {
			return err
		}
	}
	if e.Payload.Recurring {
		_, err = es.Schedule(ctx, tx, e.SessionID, domain.EventMissionGenerate, e.TriggerTick+MissionGenerateInterval, e.Payload)
	}
	return err
}
