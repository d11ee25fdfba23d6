package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/events"
	"github.com/MRamiBalles/uplink-sim/server/internal/infra/storage"
)

const testDataFile = "uplink-test-data.dat"

func (f *fixture) startCopier(t *testing.T) *domain.RunningTask {
	t.Helper()
	var fileID int64
	f.tx(t, func(tx storage.Tx) { fileID = f.file(t, tx, testMachine, testDataFile).ID })

	task, err := f.eng.StartTask(context.Background(), f.session.ID, string(domain.ToolFileCopier), 1, testMachine,
		domain.TaskParams{FileID: fileID})
	require.NoError(t, err)
	return task
}

func (f *fixture) advance(t *testing.T, task *domain.RunningTask, speed domain.Speed) TaskResult {
	t.Helper()
	var res TaskResult
	f.tx(t, func(tx storage.Tx) {
		current, err := tx.GetTask(context.Background(), task.ID)
		require.NoError(t, err)
		res, err = f.eng.tasks.Advance(context.Background(), tx, *current, speed)
		require.NoError(t, err)
	})
	return res
}

func TestCopierTicksScaleWithCPU(t *testing.T) {
	f := newFixture(t)
	task := f.startCopier(t)
	assert.Equal(t, float64(ticksPerSizeCopy*2), task.InitialTicks)
	assert.Equal(t, task.InitialTicks, task.TicksRemaining)

	f.setBalance(t, 10_000)
	gw, err := f.eng.BuyHardware(context.Background(), f.session.ID, 120)
	require.NoError(t, err)
	assert.Equal(t, 120, gw.CPUSpeed)

	faster := f.startCopier(t)
	assert.Equal(t, task.InitialTicks/2, faster.InitialTicks)
}

func TestStartTaskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var encryptedID int64
	f.tx(t, func(tx storage.Tx) {
		file := &domain.DataFile{HostID: f.host(t, tx, testMachine).ID, Name: "vault.dat", Size: 3, Kind: domain.FileData, Encrypted: 2}
		require.NoError(t, tx.CreateFile(ctx, file))
		encryptedID = file.ID
	})

	cases := []struct {
		name    string
		tool    string
		version int
		target  string
		params  domain.TaskParams
	}{
		{"unknown tool", "Nuke", 1, testMachine, domain.TaskParams{}},
		{"version zero", string(domain.ToolFileCopier), 0, testMachine, domain.TaskParams{}},
		{"not installed", string(domain.ToolDecrypter), 1, testMachine, domain.TaskParams{FileID: encryptedID}},
		{"version above installed", string(domain.ToolLogDeleter), 3, testMachine, domain.TaskParams{}},
		{"copier without file", string(domain.ToolFileCopier), 1, testMachine, domain.TaskParams{}},
		{"breaker without screen", string(domain.ToolPasswordBreaker), 1, testMachine, domain.TaskParams{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.eng.StartTask(ctx, f.session.ID, tc.tool, tc.version, tc.target, tc.params)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}

	_, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolFileCopier), 1, "1.2.3.4", domain.TaskParams{FileID: encryptedID})
	assert.True(t, domain.IsNotFound(err))
}

func TestCopierCompletesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	task := f.startCopier(t)

	completions := 0
	for i := 0; i < int(task.InitialTicks)+5; i++ {
		res := f.advance(t, task, domain.SpeedNormal)
		if res.Completed {
			completions++
			assert.Equal(t, 1.0, res.Task.Progress)
			assert.False(t, res.Task.Active)
		}
	}
	assert.Equal(t, 1, completions)

	f.tx(t, func(tx storage.Tx) {
		copied := f.file(t, tx, "127.0.0.1", testDataFile)
		assert.Equal(t, domain.FileData, copied.Kind)

		logs, err := tx.ListLogs(context.Background(), f.host(t, tx, testMachine).ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, domain.LogFileCopied, logs[0].Kind)
	})

	tasks, err := f.eng.ListTasks(context.Background(), f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDeleterRemovesFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var fileID int64
	f.tx(t, func(tx storage.Tx) { fileID = f.file(t, tx, testMachine, testDataFile).ID })
	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolFileDeleter), 1, testMachine, domain.TaskParams{FileID: fileID})
	require.NoError(t, err)
	assert.Equal(t, float64(ticksPerSizeDelete*2), task.InitialTicks)

	for i := 0; i < 3; i++ {
		f.advance(t, task, domain.SpeedTurbo)
	}
	f.tx(t, func(tx storage.Tx) {
		_, err := tx.GetFile(ctx, fileID)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestPasswordBreakerRevealsPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var screenID int64
	f.tx(t, func(tx storage.Tx) {
		screens, err := tx.ListScreens(ctx, f.host(t, tx, testMachine).ID)
		require.NoError(t, err)
		for _, s := range screens {
			if s.ScreenType == domain.ScreenPassword {
				screenID = s.ID
			}
		}
	})
	require.NotZero(t, screenID)

	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolPasswordBreaker), 1, testMachine,
		domain.TaskParams{ScreenID: screenID, Revealed: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, 70.0, task.InitialTicks, "difficulty 10 times seven characters")
	assert.Empty(t, task.Params.Revealed)

	last := ""
	var res TaskResult
	for !res.Completed {
		res = f.advance(t, task, domain.SpeedTurbo)
		revealed := res.Task.Params.Revealed
		assert.True(t, strings.HasPrefix("rosebud", revealed), "revealed %q", revealed)
		assert.GreaterOrEqual(t, len(revealed), len(last))
		last = revealed
	}
	assert.Equal(t, "rosebud", last)
}

func TestTraceTrackerReportsTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolTraceTracker), 1, testMachine, domain.TaskParams{})
	require.NoError(t, err)
	assert.True(t, task.Indefinite())

	f.connectThrough(t, testMachine)
	for n := int64(SecurityScanInterval); n <= SecurityScanInterval+2; n++ {
		f.eng.Tick(ctx, n)
	}

	updates := f.sink.of(f.session.ID, events.KindTaskUpdate)
	require.Len(t, updates, 3)
	var readings []events.TraceReading
	for _, u := range updates {
		tasks := u.Data.(events.TaskUpdate).Tasks
		require.Len(t, tasks, 1)
		require.NotNil(t, tasks[0].TraceReading)
		readings = append(readings, *tasks[0].TraceReading)
	}
	// tasks run before traces advance, so each reading is one tick behind
	assert.Equal(t, events.TraceReading{}, readings[0])
	assert.Equal(t, events.TraceReading{Active: true}, readings[1])
	assert.True(t, readings[2].Active)
	assert.InDelta(t, 0.4, readings[2].Progress, 1e-9)

	raw, err := json.Marshal(updates[0].Data)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"trace_progress":0,"trace_active":false`)

	tasks, err := f.eng.ListTasks(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Params.TraceActive)
	assert.InDelta(t, 0.4, tasks[0].Params.TraceProgress, 1e-9)
	assert.Equal(t, domain.Indefinite, tasks[0].TicksRemaining)

	require.NoError(t, f.eng.StopTask(ctx, f.session.ID, task.ID))
	require.NoError(t, f.eng.StopTask(ctx, f.session.ID, task.ID), "stopping twice is a no-op")

	tasks, err = f.eng.ListTasks(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	other := newFixture(t)
	err = other.eng.StopTask(ctx, other.session.ID, 999)
	assert.True(t, domain.IsNotFound(err))
}

func TestMonitorBypassStopsBreachScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.setBalance(t, 10_000)
	_, err := f.eng.BuySoftware(ctx, f.session.ID, string(domain.ToolMonitorBypass), 1)
	require.NoError(t, err)
	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolMonitorBypass), 1, testMachine, domain.TaskParams{})
	require.NoError(t, err)
	assert.Equal(t, float64(ticksMonitorBypass), task.InitialTicks)

	var done TaskResult
	for i := 0; i < 10 && !done.Completed; i++ {
		done = f.advance(t, task, domain.SpeedTurbo)
	}
	require.True(t, done.Completed)

	f.connectThrough(t, testMachine)
	f.tx(t, func(tx storage.Tx) {
		systems, err := tx.ListSecuritySystems(ctx, f.host(t, tx, testMachine).ID)
		require.NoError(t, err)
		require.NotEmpty(t, systems)
		for _, s := range systems {
			assert.False(t, s.Active)
		}

		started, err := f.eng.security.ScanBreaches(ctx, tx, f.session.ID)
		require.NoError(t, err)
		assert.Empty(t, started)
		assert.False(t, f.connection(t, tx).TraceActive)
	})
}

func TestCountermeasuresDisableTheirKind(t *testing.T) {
	cases := []struct {
		tool domain.Tool
		kind domain.SecurityKind
	}{
		{domain.ToolMonitorBypass, domain.SecurityMonitor},
		{domain.ToolFirewallDisable, domain.SecurityFirewall},
		{domain.ToolProxyDisable, domain.SecurityProxy},
	}
	for _, tc := range cases {
		t.Run(string(tc.tool), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			task := &domain.RunningTask{
				SessionID: f.session.ID, PlayerID: f.player.ID, ToolName: tc.tool, ToolVersion: 2,
				TargetAddress: government, TicksRemaining: 1, InitialTicks: 1, Active: true,
			}
			f.tx(t, func(tx storage.Tx) { require.NoError(t, tx.CreateTask(ctx, task)) })
			require.True(t, f.advance(t, task, domain.SpeedNormal).Completed)

			f.tx(t, func(tx storage.Tx) {
				systems, err := tx.ListSecuritySystems(ctx, f.host(t, tx, government).ID)
				require.NoError(t, err)
				require.Len(t, systems, 3)
				for _, s := range systems {
					assert.Equal(t, s.Kind != tc.kind, s.Active, "kind %d", s.Kind)
				}
			})
		})
	}
}

func TestCountermeasureTicksShrinkWithVersion(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, 20_000)
	ctx := context.Background()

	_, err := f.eng.BuySoftware(ctx, f.session.ID, string(domain.ToolProxyDisable), 4)
	require.NoError(t, err)
	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolProxyDisable), 4, government, domain.TaskParams{})
	require.NoError(t, err)
	assert.Equal(t, float64(ticksProxyDisable)/4, task.InitialTicks)

	_, err = f.eng.StartTask(ctx, f.session.ID, string(domain.ToolFirewallDisable), 1, government, domain.TaskParams{})
	assert.True(t, domain.IsValidation(err), "not installed")
}

func TestDeleteLogsByVersion(t *testing.T) {
	type state struct{ kept, hidden int }
	cases := []struct {
		version int
		pick    int
		want    state
	}{
		{1, 0, state{kept: 3, hidden: 1}},
		{2, 2, state{kept: 3, hidden: 1}},
		{3, 0, state{kept: 3, hidden: 3}},
		{4, 0, state{kept: 3, hidden: 3}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("v%d", tc.version), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.tx(t, func(tx storage.Tx) {
				hostID := f.host(t, tx, testMachine).ID
				var ids []int64
				for tick := int64(1); tick <= 3; tick++ {
					l := &domain.AccessLog{HostID: hostID, SessionID: f.session.ID, CreatedAtTick: tick,
						FromAddress: "127.0.0.1", Subject: "Connection established", Kind: domain.LogConnectionEstablished, Visible: true}
					require.NoError(t, tx.CreateLog(ctx, l))
					ids = append(ids, l.ID)
				}

				require.NoError(t, deleteLogs(ctx, tx, hostID, tc.version, ids[tc.pick]))

				logs, err := tx.ListLogs(ctx, hostID)
				require.NoError(t, err)
				got := state{kept: len(logs)}
				for _, l := range logs {
					if l.Deleted {
						got.hidden++
						if tc.version < 3 {
							assert.Equal(t, ids[tc.pick], l.ID)
						}
					}
					assert.Equal(t, tc.version < 4, l.Visible)
				}
				assert.Equal(t, tc.want, got)
			})
		})
	}
}

func TestLogUnDeleterRestoresDeletedLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var hostID int64
	f.tx(t, func(tx storage.Tx) {
		hostID = f.host(t, tx, testMachine).ID
		for tick := int64(1); tick <= 3; tick++ {
			require.NoError(t, tx.CreateLog(ctx, &domain.AccessLog{HostID: hostID, SessionID: f.session.ID, CreatedAtTick: tick,
				FromAddress: "127.0.0.1", Subject: "Connection established", Kind: domain.LogConnectionEstablished, Visible: true}))
		}
		require.NoError(t, deleteLogs(ctx, tx, hostID, 4, 0))
	})

	task := &domain.RunningTask{
		SessionID: f.session.ID, PlayerID: f.player.ID, ToolName: domain.ToolLogUnDeleter, ToolVersion: 1,
		TargetAddress: testMachine, TicksRemaining: ticksLogUndelete, InitialTicks: ticksLogUndelete, Active: true,
	}
	f.tx(t, func(tx storage.Tx) { require.NoError(t, tx.CreateTask(ctx, task)) })
	var done TaskResult
	for i := 0; i < 10 && !done.Completed; i++ {
		done = f.advance(t, task, domain.SpeedTurbo)
	}
	require.True(t, done.Completed)

	f.tx(t, func(tx storage.Tx) {
		logs, err := tx.ListLogs(ctx, hostID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		for _, l := range logs {
			assert.False(t, l.Deleted)
			assert.True(t, l.Visible)
		}
	})
}

func TestMissionPaysOnMatchingCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mission domain.Mission
	f.tx(t, func(tx storage.Tx) {
		mission = domain.Mission{SessionID: f.session.ID, Kind: domain.MissionStealFile, Employer: "Arunmor",
			Payment: 1200, Difficulty: 1, TargetAddress: testMachine, TargetFile: testDataFile}
		require.NoError(t, tx.CreateMission(ctx, &mission))
	})

	accepted, err := f.eng.AcceptMission(ctx, f.session.ID, mission.ID)
	require.NoError(t, err)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, f.player.ID, *accepted.AcceptedBy)

	_, err = f.eng.AcceptMission(ctx, f.session.ID, mission.ID)
	assert.True(t, domain.IsValidation(err), "a mission is accepted once")

	task := f.startCopier(t)
	var done TaskResult
	for i := 0; i < int(task.InitialTicks); i++ {
		if res := f.advance(t, task, domain.SpeedNormal); res.Completed {
			done = res
		}
	}
	assert.Equal(t, int64(1200), done.Payout)
	assert.Equal(t, int64(3000+1200), done.Balance)
	require.Len(t, done.Messages, 1)
	assert.Equal(t, "Mission completed", done.Messages[0].Subject)

	p := f.reloadPlayer(t)
	assert.Equal(t, int64(4200), p.Balance)
	assert.Equal(t, 1, p.UpRating)

	missions, err := f.eng.ListMissions(ctx, f.session.ID)
	require.NoError(t, err)
	for _, m := range missions {
		if m.ID == mission.ID {
			assert.True(t, m.Completed)
		}
	}
}

func TestAcceptMissionRequiresRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mission domain.Mission
	f.tx(t, func(tx storage.Tx) {
		mission = domain.Mission{SessionID: f.session.ID, Kind: domain.MissionDestroyFile, Employer: "Arunmor",
			Payment: 5000, Difficulty: 4, MinRating: 3, TargetAddress: government, TargetFile: "records.db"}
		require.NoError(t, tx.CreateMission(ctx, &mission))
	})
	_, err := f.eng.AcceptMission(ctx, f.session.ID, mission.ID)
	assert.True(t, domain.IsValidation(err))

	other := newFixture(t)
	_, err = other.eng.AcceptMission(ctx, other.session.ID, mission.ID)
	assert.Error(t, err)
}

func TestBuySoftwareInstallsTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.BuySoftware(ctx, f.session.ID, string(domain.ToolDecrypter), 9)
	assert.True(t, domain.IsValidation(err))

	f.setBalance(t, 500)
	_, err = f.eng.BuySoftware(ctx, f.session.ID, string(domain.ToolDecrypter), 1)
	assert.ErrorContains(t, err, "insufficient funds")
	assert.Equal(t, int64(500), f.reloadPlayer(t).Balance)

	f.setBalance(t, 1000)
	file, err := f.eng.BuySoftware(ctx, f.session.ID, string(domain.ToolDecrypter), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.FileSoftware, file.Kind)
	assert.Equal(t, int64(200), f.reloadPlayer(t).Balance)

	var encryptedID int64
	f.tx(t, func(tx storage.Tx) {
		vault := &domain.DataFile{HostID: f.host(t, tx, testMachine).ID, Name: "vault.dat", Size: 1, Kind: domain.FileData, Encrypted: 1}
		require.NoError(t, tx.CreateFile(ctx, vault))
		encryptedID = vault.ID
	})
	task, err := f.eng.StartTask(ctx, f.session.ID, string(domain.ToolDecrypter), 1, testMachine, domain.TaskParams{FileID: encryptedID})
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		f.advance(t, task, domain.SpeedTurbo)
	}
	f.tx(t, func(tx storage.Tx) {
		vault, err := tx.GetFile(ctx, encryptedID)
		require.NoError(t, err)
		assert.Zero(t, vault.Encrypted)
	})
}

func TestBuyHardwareRejectsDowngrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.BuyHardware(ctx, f.session.ID, 60)
	assert.True(t, domain.IsValidation(err))

	_, err = f.eng.BuyHardware(ctx, f.session.ID, 61)
	assert.True(t, domain.IsValidation(err))

	_, err = f.eng.BuyHardware(ctx, f.session.ID, 150)
	assert.ErrorContains(t, err, "insufficient funds")
}
