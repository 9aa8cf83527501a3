// Command loadtest drives a running gateway with synthetic WebSocket
// sessions and reports round-trip latency for the read-path requests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
)

const (
	defaultGatewayURL = "ws://localhost:8080/ws"
	dialTimeout       = 10 * time.Second
	readTimeout       = 30 * time.Second
)

type Config struct {
	GatewayURL string
	Sessions   int           // Concurrent WebSocket sessions
	Rate       float64       // Requests per second per session
	Duration   time.Duration // How long to run (0 = until interrupted)
	SpaceID    string        // Target space for entry checks ("" = rotate)
	Token      string        // Session token; empty runs as spectator
	OutputFile string        // Output markdown file path (optional)
	Debug      bool
}

// RequestStats aggregates one request type's outcomes
type RequestStats struct {
	Type      string
	Sent      int
	Succeeded int
	Failed    int
	Latencies []time.Duration
}

// RunStats is the whole run's outcome
type RunStats struct {
	mu        sync.Mutex
	Sessions  int
	DialFails int
	Started   time.Time
	Finished  time.Time
	ByType    map[string]*RequestStats
}

func newRunStats(sessions int) *RunStats {
	return &RunStats{Sessions: sessions, ByType: make(map[string]*RequestStats)}
}

func (s *RunStats) record(requestType string, latency time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, found := s.ByType[requestType]
	if !found {
		stats = &RequestStats{Type: requestType}
		s.ByType[requestType] = stats
	}
	stats.Sent++
	if ok {
		stats.Succeeded++
	} else {
		stats.Failed++
	}
	stats.Latencies = append(stats.Latencies, latency)
}

func (s *RunStats) dialFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DialFails++
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, draining sessions...")
		cancel()
	}()

	fmt.Printf("Starting %d sessions against %s at %.1f req/s each\n",
		cfg.Sessions, cfg.GatewayURL, cfg.Rate)

	stats := newRunStats(cfg.Sessions)
	stats.Started = time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runSession(ctx, cfg, n, stats); err != nil {
				if cfg.Debug {
					fmt.Printf("session %d: %v\n", n, err)
				}
				stats.dialFailed()
			}
		}(i)
	}
	wg.Wait()
	stats.Finished = time.Now()

	printRunStats(stats)

	if cfg.OutputFile != "" {
		if err := writeMarkdownReport(cfg.OutputFile, stats); err != nil {
			fmt.Printf("Failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report written to %s\n", cfg.OutputFile)
	}
}

func parseFlags() *Config {
	cfg := &Config{}
	flag.StringVar(&cfg.GatewayURL, "url", defaultGatewayURL, "Gateway WebSocket URL")
	flag.IntVar(&cfg.Sessions, "sessions", 10, "Number of concurrent sessions")
	flag.Float64Var(&cfg.Rate, "rate", 2, "Requests per second per session")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Run duration (0 = until interrupted)")
	flag.StringVar(&cfg.SpaceID, "space", "", "Space ID for entry checks (empty rotates over the listing)")
	flag.StringVar(&cfg.Token, "token", "", "Session token (empty runs as spectator)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Write a markdown report to this file")
	flag.BoolVar(&cfg.Debug, "debug", false, "Log per-session errors")
	flag.Parse()

	if cfg.Sessions <= 0 || cfg.Rate <= 0 {
		fmt.Println("sessions and rate must be positive")
		os.Exit(1)
	}
	return cfg
}

// runSession opens one WebSocket session and issues requests until the
// context ends. Server pushes (space_updated, space_kicked) arriving between
// a request and its reply are skipped, not treated as the answer.
func runSession(ctx context.Context, cfg *Config, n int, stats *RunStats) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloRequest{Type: protocol.TypeHello, Token: cfg.Token}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	var welcome protocol.Welcome
	if err := conn.ReadJSON(&welcome); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}

	spaces, err := fetchSpaceList(conn, stats)
	if err != nil {
		return err
	}
	if len(spaces) == 0 {
		return fmt.Errorf("gateway reports no spaces")
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Rate))
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		spaceID := cfg.SpaceID
		if spaceID == "" {
			spaceID = spaces[(n+i)%len(spaces)]
		}

		// Mostly entry checks with an occasional listing, roughly the mix a
		// client walking the world produces
		if i%10 == 9 {
			if _, err := fetchSpaceList(conn, stats); err != nil {
				return err
			}
			continue
		}
		if err := checkEntry(conn, spaceID, stats); err != nil {
			return err
		}
	}
}

func fetchSpaceList(conn *websocket.Conn, stats *RunStats) ([]string, error) {
	start := time.Now()
	if err := conn.WriteJSON(protocol.Base{Type: protocol.TypeSpaceList}); err != nil {
		return nil, fmt.Errorf("space_list write: %w", err)
	}

	raw, err := awaitReply(conn, protocol.TypeSpaceList)
	if err != nil {
		return nil, err
	}
	stats.record(protocol.TypeSpaceList, time.Since(start), true)

	var listing struct {
		Spaces []struct {
			SpaceID string `json:"spaceId"`
		} `json:"spaces"`
	}
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, fmt.Errorf("space_list decode: %w", err)
	}
	ids := make([]string, 0, len(listing.Spaces))
	for _, space := range listing.Spaces {
		ids = append(ids, space.SpaceID)
	}
	return ids, nil
}

func checkEntry(conn *websocket.Conn, spaceID string, stats *RunStats) error {
	start := time.Now()
	request := protocol.SpaceRequest{Type: protocol.TypeSpaceCanEnter, SpaceID: spaceID}
	if err := conn.WriteJSON(request); err != nil {
		return fmt.Errorf("can_enter write: %w", err)
	}

	raw, err := awaitReply(conn, protocol.TypeSpaceCanEnter)
	if err != nil {
		return err
	}

	var reply struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &reply)
	// Rate-limit refusals count as failures so the report surfaces them
	stats.record(protocol.TypeSpaceCanEnter, time.Since(start), reply.Error == "")
	return nil
}

// awaitReply reads frames until one matches the expected type, skipping
// server pushes and error envelopes for other requests
func awaitReply(conn *websocket.Conn, wantType string) ([]byte, error) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		if base.Type == wantType || base.Type == protocol.TypeError {
			return raw, nil
		}
	}
}

func printRunStats(stats *RunStats) {
	elapsed := stats.Finished.Sub(stats.Started)

	fmt.Println()
	fmt.Println("=== Load Test Results ===")
	fmt.Printf("Sessions:   %d (%d failed to connect)\n", stats.Sessions, stats.DialFails)
	fmt.Printf("Elapsed:    %s\n", formatDuration(elapsed))
	fmt.Println()

	for _, rs := range sortedStats(stats) {
		fmt.Printf("%s %s\n", resultEmoji(rs), rs.Type)
		fmt.Printf("  sent=%d ok=%s failed=%d throughput=%s\n",
			rs.Sent, percentageString(rs.Succeeded, rs.Sent), rs.Failed, formatRate(rs.Sent, elapsed))
		p50, p95, p99 := percentiles(rs.Latencies)
		fmt.Printf("  latency p50=%s p95=%s p99=%s\n",
			formatDuration(p50), formatDuration(p95), formatDuration(p99))
	}
}

func writeMarkdownReport(path string, stats *RunStats) error {
	elapsed := stats.Finished.Sub(stats.Started)

	var b []byte
	b = fmt.Appendf(b, "# Gateway Load Test\n\n")
	b = fmt.Appendf(b, "- Sessions: %d (%d failed to connect)\n", stats.Sessions, stats.DialFails)
	b = fmt.Appendf(b, "- Elapsed: %s\n\n", formatDuration(elapsed))
	b = fmt.Appendf(b, "| Request | Sent | OK | Failed | Throughput | p50 | p95 | p99 |\n")
	b = fmt.Appendf(b, "|---------|------|----|--------|------------|-----|-----|-----|\n")

	for _, rs := range sortedStats(stats) {
		p50, p95, p99 := percentiles(rs.Latencies)
		b = fmt.Appendf(b, "| %s | %d | %s | %d | %s | %s | %s | %s |\n",
			rs.Type, rs.Sent, percentageString(rs.Succeeded, rs.Sent), rs.Failed,
			formatRate(rs.Sent, elapsed),
			formatDuration(p50), formatDuration(p95), formatDuration(p99))
	}

	return os.WriteFile(path, b, 0644)
}

func sortedStats(stats *RunStats) []*RequestStats {
	out := make([]*RequestStats, 0, len(stats.ByType))
	for _, rs := range stats.ByType {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// percentiles returns the p50, p95 and p99 latencies
func percentiles(latencies []time.Duration) (time.Duration, time.Duration, time.Duration) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pick := func(p float64) time.Duration {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return pick(0.50), pick(0.95), pick(0.99)
}
