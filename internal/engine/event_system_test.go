package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

type tickedKind struct {
	Kind domain.EventKind
	Tick int64
}

func kindsAndTicks(evs []domain.ScheduledEvent) []tickedKind {
	out := make([]tickedKind, 0, len(evs))
	for _, e := range evs {
		out = append(out, tickedKind{e.Kind, e.TriggerTick})
	}
	return out
}

func TestScheduleTraceConsequencesHighSecurity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tx(t, func(tx storage.Tx) {
		evs, err := f.eng.scheduler.ScheduleTraceConsequences(ctx, tx, f.session.ID, "Global Criminal Database", 100, 500)
		require.NoError(t, err)

		arrest := int64(100 + LegalActionDelay)
		shot := arrest + TacticalActionDelay
		assert.Equal(t, []tickedKind{
			{domain.EventWarning, 100},
			{domain.EventLegalWarning, arrest - LegalWarningLead},
			{domain.EventArrest, arrest},
			{domain.EventTacticalWarning, shot - TacticalWarningLead},
			{domain.EventShotByFeds, shot},
		}, kindsAndTicks(evs))
		assert.Equal(t, int64(1000), arrest, "three game hours at five ticks per minute")
	})
}

func TestScheduleTraceConsequencesLowSecurity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tx(t, func(tx storage.Tx) {
		evs, err := f.eng.scheduler.ScheduleTraceConsequences(ctx, tx, f.session.ID, "Uplink Test Machine", 100, 50)
		require.NoError(t, err)
		require.Len(t, evs, 2)
		assert.Equal(t, tickedKind{domain.EventWarning, 100}, kindsAndTicks(evs)[0])
		assert.Equal(t, tickedKind{domain.EventFine, 100 + LegalActionDelay}, kindsAndTicks(evs)[1])
		assert.Equal(t, int64(DefaultFineAmount), evs[1].Payload.Amount)
	})
}

func TestScheduleRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	f.tx(t, func(tx storage.Tx) {
		_, err := f.eng.scheduler.Schedule(context.Background(), tx, f.session.ID, "meteor_strike", 10, domain.EventPayload{})
		assert.True(t, domain.IsValidation(err))
	})
}

func TestFineDeductsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, 3000)

	out := events.NewOutbox()
	f.tx(t, func(tx storage.Tx) {
		_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventFine, 0, domain.EventPayload{Amount: 1500})
		require.NoError(t, err)
		over, err := f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 0, out)
		require.NoError(t, err)
		assert.False(t, over)
	})

	assert.Equal(t, int64(1500), f.reloadPlayer(t).Balance)

	var balance []events.BalanceChanged
	for _, n := range out.For(f.session.ID) {
		if n.Kind == events.KindBalanceChanged {
			balance = append(balance, n.Data.(events.BalanceChanged))
		}
	}
	require.Len(t, balance, 1)
	assert.Equal(t, int64(1500), balance[0].Balance)
	require.NotNil(t, balance[0].Fine)
	assert.Equal(t, int64(1500), *balance[0].Fine)
}

func TestFineNeverDrivesBalanceNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, 1500)

	f.tx(t, func(tx storage.Tx) {
		_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventFine, 0, domain.EventPayload{Amount: DefaultFineAmount})
		require.NoError(t, err)
		_, err = f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 0, events.NewOutbox())
		require.NoError(t, err)
	})
	assert.Zero(t, f.reloadPlayer(t).Balance)
}

func TestEventsFireOnceWhenDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var warning *domain.ScheduledEvent
	f.tx(t, func(tx storage.Tx) {
		var err error
		warning, err = f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventWarning, 5, domain.EventPayload{TargetName: "X"})
		require.NoError(t, err)
	})

	fired := 0
	for tick := int64(3); tick <= 8; tick++ {
		out := events.NewOutbox()
		f.tx(t, func(tx storage.Tx) {
			_, err := f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, tick, out)
			require.NoError(t, err)
		})
		for _, n := range out.For(f.session.ID) {
			if m, ok := n.Data.(events.MessageReceived); ok && m.Subject == "Security Alert: Unauthorized access to X" {
				fired++
				assert.GreaterOrEqual(t, tick, warning.TriggerTick)
			}
		}
	}
	assert.Equal(t, 1, fired)

	f.tx(t, func(tx storage.Tx) {
		claimed, err := tx.MarkEventProcessed(ctx, warning.ID)
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestArrestEndsGameAndSilencesLaterEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := events.NewOutbox()
	f.tx(t, func(tx storage.Tx) {
		_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventArrest, 10, domain.EventPayload{TargetName: "X"})
		require.NoError(t, err)
		_, err = f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventFine, 10, domain.EventPayload{Amount: 100})
		require.NoError(t, err)

		over, err := f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 10, out)
		require.NoError(t, err)
		assert.True(t, over)

		s, err := tx.GetSession(ctx, f.session.ID)
		require.NoError(t, err)
		assert.False(t, s.Active)

		due, err := tx.ListDueEvents(ctx, f.session.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, due, "events after the arrest are consumed")
	})

	var reasons []string
	for _, n := range out.For(f.session.ID) {
		assert.NotEqual(t, events.KindBalanceChanged, n.Kind)
		if n.Kind == events.KindGameOver {
			reasons = append(reasons, n.Data.(events.GameOver).Reason)
		}
	}
	assert.Equal(t, []string{"arrested"}, reasons)
	assert.Equal(t, int64(3000), f.reloadPlayer(t).Balance)
}

func TestGameOverReasons(t *testing.T) {
	cases := map[domain.EventKind]string{
		domain.EventArrest:         "arrested",
		domain.EventShotByFeds:     "shot_by_feds",
		domain.EventGatewaySeizure: "gateway_seized",
		domain.EventBankRobbery:    "caught_money_transfer",
	}
	for kind, reason := range cases {
		t.Run(string(kind), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			out := events.NewOutbox()
			f.tx(t, func(tx storage.Tx) {
				_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, kind, 1, domain.EventPayload{})
				require.NoError(t, err)
				over, err := f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 1, out)
				require.NoError(t, err)
				assert.True(t, over)
			})
			var got string
			for _, n := range out.For(f.session.ID) {
				if n.Kind == events.KindGameOver {
					got = n.Data.(events.GameOver).Reason
				}
			}
			assert.Equal(t, reason, got)
		})
	}
}

func TestUplinkFeeChargesAndReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, 1000)

	f.tx(t, func(tx storage.Tx) {
		_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventUplinkFee, 50, domain.EventPayload{})
		require.NoError(t, err)
		_, err = f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 50, events.NewOutbox())
		require.NoError(t, err)

		pending, err := tx.ListPendingEvents(ctx, f.session.ID)
		require.NoError(t, err)
		assert.Contains(t, kindsAndTicks(pending), tickedKind{domain.EventUplinkFee, 50 + UplinkBillingPeriod})
	})
	assert.Equal(t, int64(1000-UplinkMonthlyFee), f.reloadPlayer(t).Balance)
}

func TestExpireOldSweepsAndReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := int64(LogMaxAge + 100)

	f.tx(t, func(tx storage.Tx) {
		require.NoError(t, tx.CreateNews(ctx, &domain.NewsArticle{SessionID: f.session.ID, Headline: "old", CreatedAtTick: 0}))
		require.NoError(t, tx.CreateNews(ctx, &domain.NewsArticle{SessionID: f.session.ID, Headline: "fresh", CreatedAtTick: now}))
		require.NoError(t, tx.CreateLog(ctx, &domain.AccessLog{
			HostID: f.host(t, tx, testMachine).ID, SessionID: f.session.ID, CreatedAtTick: 0,
			FromAddress: "127.0.0.1", Subject: "ancient", Kind: domain.LogConnectionEstablished, Visible: true,
		}))

		_, err := f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventExpireOld, now, domain.EventPayload{})
		require.NoError(t, err)
		_, err = f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, now, events.NewOutbox())
		require.NoError(t, err)

		news, err := tx.ListNews(ctx, f.session.ID)
		require.NoError(t, err)
		require.Len(t, news, 1)
		assert.Equal(t, "fresh", news[0].Headline)

		logs, err := tx.ListLogs(ctx, f.host(t, tx, testMachine).ID)
		require.NoError(t, err)
		assert.Empty(t, logs)

		pending, err := tx.ListPendingEvents(ctx, f.session.ID)
		require.NoError(t, err)
		assert.Contains(t, kindsAndTicks(pending), tickedKind{domain.EventExpireOld, now + ExpireSweepInterval})
	})
}

func TestMissionGenerateScalesWithRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tx(t, func(tx storage.Tx) {
		// Fire and clear the opening batch so only this run is counted.
		_, err := f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 0, events.NewOutbox())
		require.NoError(t, err)
		_, err = tx.DeleteMissionsBefore(ctx, f.session.ID, 1)
		require.NoError(t, err)

		p, err := tx.GetPlayer(ctx, f.player.ID)
		require.NoError(t, err)
		p.UpRating = 8
		require.NoError(t, tx.UpdatePlayer(ctx, p))

		_, err = f.eng.scheduler.Schedule(ctx, tx, f.session.ID, domain.EventMissionGenerate, 0, domain.EventPayload{Count: 3})
		require.NoError(t, err)
		_, err = f.eng.scheduler.ProcessDue(ctx, tx, f.session.ID, 0, events.NewOutbox())
		require.NoError(t, err)

		missions, err := tx.ListMissions(ctx, f.session.ID)
		require.NoError(t, err)
		assert.Len(t, missions, 3+8/4)

		pending, err := tx.ListPendingEvents(ctx, f.session.ID)
		require.NoError(t, err)
		for _, e := range pending {
			if e.Kind == domain.EventMissionGenerate {
				assert.True(t, e.Payload.Recurring, "only the initial recurring job stays queued")
			}
		}
	})
}

func TestInitialEventsAreQueued(t *testing.T) {
	f := newFixture(t)
	pending, err := f.eng.PendingEvents(context.Background(), f.session.ID)
	require.NoError(t, err)

	got := kindsAndTicks(pending)
	assert.Contains(t, got, tickedKind{domain.EventMissionGenerate, 0})
	assert.Contains(t, got, tickedKind{domain.EventMissionGenerate, MissionGenerateInterval})
	assert.Contains(t, got, tickedKind{domain.EventUplinkFee, UplinkBillingPeriod})
	assert.Contains(t, got, tickedKind{domain.EventExpireOld, ExpireSweepInterval})
}
