// Package main - agitator
// Load generator for the simulation server: every client opens its own
// session over HTTP and then drives it through the WebSocket command channel.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	ResultsPath    string
}

// Stats tracks performance metrics
type Stats struct {
	CommandsSent int64
	Replies      int64
	Pushes       int64
	RateLimited  int64
	Errors       int64
	Latencies    []time.Duration
	mu           sync.Mutex
}

func (s *Stats) observe(d time.Duration) {
	s.mu.Lock()
	s.Latencies = append(s.Latencies, d)
	s.mu.Unlock()
}

// Addresses present in the built-in world seed.
var bounceTargets = []string{"234.773.0.666", "458.615.48.651", "128.185.0.4"}

var speeds = []int{0, 1, 3, 8}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg Config
	cmd := &cobra.Command{
		Use:          "agitator",
		Short:        "Stress the simulation server with concurrent sessions",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TestDuration)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server: %s  Clients: %d  Interval: %v  Duration: %v\n",
				cfg.ServerURL, cfg.NumClients, cfg.ActionInterval, cfg.TestDuration)

			stats := runStressTest(ctx, cfg)
			return printResults(out, stats, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.ServerURL, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().IntVar(&cfg.NumClients, "clients", 50, "number of concurrent sessions")
	cmd.Flags().DurationVar(&cfg.ActionInterval, "interval", 200*time.Millisecond, "command interval per client")
	cmd.Flags().DurationVar(&cfg.TestDuration, "duration", 60*time.Second, "test duration")
	cmd.Flags().StringVar(&cfg.ResultsPath, "results", "stress_test_results.json", "where to write the JSON summary")
	return cmd
}

func runStressTest(ctx context.Context, cfg Config) *Stats {
	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}

	var wg sync.WaitGroup
	for i := 0; i < cfg.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			if err := runClient(ctx, clientID, cfg, stats); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				fmt.Fprintf(os.Stderr, "client %d: %v\n", clientID, err)
			}
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()
	return stats
}

func createSession(ctx context.Context, base string, clientID int) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"account_ref": fmt.Sprintf("agitator-%03d", clientID),
		"handle":      fmt.Sprintf("agent%03d", clientID),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: status %d", resp.StatusCode)
	}
	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return created.Session.ID, nil
}

func wsURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = url.Values{"session": {sessionID}}.Encode()
	return u.String(), nil
}

func runClient(ctx context.Context, clientID int, cfg Config, stats *Stats) error {
	sessionID, err := createSession(ctx, cfg.ServerURL, clientID)
	if err != nil {
		return err
	}
	target, err := wsURL(cfg.ServerURL, sessionID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Replies come back in command order, so the oldest send time matches the next reply.
	var pending sync.Mutex
	var sentAt []time.Time
	go func() {
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			kind, _ := msg["type"].(string)
			if !isReply(kind) {
				atomic.AddInt64(&stats.Pushes, 1)
				continue
			}
			atomic.AddInt64(&stats.Replies, 1)
			if msg["detail"] == "rate limit exceeded" {
				atomic.AddInt64(&stats.RateLimited, 1)
			}
			pending.Lock()
			if len(sentAt) > 0 {
				stats.observe(time.Since(sentAt[0]))
				sentAt = sentAt[1:]
			}
			pending.Unlock()
		}
	}()

	rng := rand.New(rand.NewPCG(uint64(clientID), uint64(time.Now().UnixNano())))
	ticker := time.NewTicker(cfg.ActionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pending.Lock()
			sentAt = append(sentAt, time.Now())
			pending.Unlock()
			if err := conn.WriteJSON(randomCommand(rng)); err != nil {
				return err
			}
			atomic.AddInt64(&stats.CommandsSent, 1)
		}
	}
}

func isReply(kind string) bool {
	switch kind {
	case "heartbeat_ack", "speed_changed", "bounce_chain_updated", "connected", "disconnected", "screen", "error":
		return true
	}
	return false
}

func randomCommand(rng *rand.Rand) map[string]any {
	switch rng.IntN(7) {
	case 0:
		return map[string]any{"type": "set_speed", "speed": speeds[rng.IntN(len(speeds))]}
	case 1:
		return map[string]any{"type": "bounce_add", "address": bounceTargets[rng.IntN(len(bounceTargets))]}
	case 2:
		return map[string]any{"type": "bounce_remove", "position": 0}
	case 3:
		return map[string]any{"type": "connect"}
	case 4:
		return map[string]any{"type": "screen_action", "action": "menu_select", "screen_index": 1 + rng.IntN(5)}
	case 5:
		return map[string]any{"type": "disconnect"}
	default:
		return map[string]any{"type": "heartbeat"}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func printResults(out io.Writer, stats *Stats, cfg Config) error {
	sent := atomic.LoadInt64(&stats.CommandsSent)
	errs := atomic.LoadInt64(&stats.Errors)

	stats.mu.Lock()
	lat := append([]time.Duration(nil), stats.Latencies...)
	stats.mu.Unlock()
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	results := map[string]any{
		"commands_sent":      sent,
		"replies":            atomic.LoadInt64(&stats.Replies),
		"pushes":             atomic.LoadInt64(&stats.Pushes),
		"rate_limited":       atomic.LoadInt64(&stats.RateLimited),
		"client_errors":      errs,
		"throughput_per_sec": float64(sent) / cfg.TestDuration.Seconds(),
		"latency_p50":        percentile(lat, 0.50).String(),
		"latency_p99":        percentile(lat, 0.99).String(),
		"config": map[string]any{
			"clients":  cfg.NumClients,
			"interval": cfg.ActionInterval.String(),
			"duration": cfg.TestDuration.String(),
		},
	}

	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(jsonData))
	if cfg.ResultsPath == "" {
		return nil
	}
	return os.WriteFile(cfg.ResultsPath, jsonData, 0o644)
}
