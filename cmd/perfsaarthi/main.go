package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/saarthi/internal/config"
	"github.com/ent0n29/saarthi/internal/observability"
	"github.com/ent0n29/saarthi/internal/protocol"
)

type options struct {
	baseURL        string
	language       string
	turns          int
	holdDuration   time.Duration
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	Text   string `json:"text,omitempty"`
	Intent string `json:"intent,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type turnResult struct {
	text   string
	intent string
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfsaarthi: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfsaarthi: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var holdMS, startDelayMS, interTurnMS, turnTimeoutMS int

	fs := flag.NewFlagSet("perfsaarthi", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "saarthi control API base URL")
	fs.StringVar(&cfg.language, "language", "", "switch to this language before replaying (en|hi|te)")
	fs.IntVar(&cfg.turns, "turns", 5, "number of capture cycles to drive")
	fs.IntVar(&holdMS, "hold-ms", 1500, "how long each recording stays open in milliseconds")
	fs.IntVar(&startDelayMS, "start-delay-ms", 300, "delay before the first cycle in milliseconds")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 250, "delay between cycles in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for the assistant reply per cycle in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	cfg.language = strings.ToLower(strings.TrimSpace(cfg.language))
	if cfg.language != "" && !config.IsSupportedLanguage(cfg.language) {
		return options{}, fmt.Errorf("language must be one of %s", strings.Join(config.SupportedLanguages, "|"))
	}
	if holdMS < 0 {
		holdMS = 0
	}
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.holdDuration = time.Duration(holdMS) * time.Millisecond
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Minute)
	defer cancel()

	wsURL, err := transcriptWSURL(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	turnEndCh := make(chan turnResult, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, turnEndCh, readErrCh, cfg.verbose, out)

	if cfg.language != "" {
		if err := conn.WriteJSON(protocol.ClientLanguage{Type: protocol.TypeClientLanguage, Language: cfg.language}); err != nil {
			return fmt.Errorf("send language: %w", err)
		}
	}
	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	for i := 0; i < cfg.turns; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		default:
		}

		started := time.Now()
		if err := sendControl(conn, protocol.ActionStart); err != nil {
			return fmt.Errorf("turn %d send start: %w", i+1, err)
		}
		if cfg.holdDuration > 0 {
			time.Sleep(cfg.holdDuration)
		}
		stopped := time.Now()
		if err := sendControl(conn, protocol.ActionStop); err != nil {
			return fmt.Errorf("turn %d send stop: %w", i+1, err)
		}
		res, err := awaitTurnEnd(turnEndCh, readErrCh, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await assistant reply: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Fprintf(out, "perfsaarthi: turn %d/%d intent=%s reply_ms=%d total_ms=%d text=%q\n",
				i+1, cfg.turns, res.intent, time.Since(stopped).Milliseconds(), time.Since(started).Milliseconds(), res.text)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	snap, err := fetchLatency(ctx, &http.Client{Timeout: 15 * time.Second}, cfg.baseURL)
	if err != nil {
		return fmt.Errorf("fetch latency snapshot: %w", err)
	}
	printSnapshot(out, snap)
	return nil
}

func transcriptWSURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/transcript/ws"
	return u.String(), nil
}

// readLoop reports every bot transcript message as the end of a cycle.
func readLoop(conn *websocket.Conn, turnEndCh chan<- turnResult, readErrCh chan<- error, verbose bool, out io.Writer) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeTranscriptMessage):
			if env.Role != "bot" {
				continue
			}
			select {
			case turnEndCh <- turnResult{text: env.Text, intent: env.Intent}:
			default:
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(out, "perfsaarthi: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func sendControl(conn *websocket.Conn, action string) error {
	return conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: action})
}

func awaitTurnEnd(turnEndCh <-chan turnResult, readErrCh <-chan error, timeout time.Duration) (turnResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-turnEndCh:
		return res, nil
	case err := <-readErrCh:
		return turnResult{}, err
	case <-timer.C:
		return turnResult{}, fmt.Errorf("timeout after %s", timeout)
	}
}

func fetchLatency(ctx context.Context, client *http.Client, baseURL string) (observability.StageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return observability.StageSnapshot{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return observability.StageSnapshot{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return observability.StageSnapshot{}, err
	}
	if res.StatusCode != http.StatusOK {
		return observability.StageSnapshot{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var snap observability.StageSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return observability.StageSnapshot{}, err
	}
	return snap, nil
}

func printSnapshot(out io.Writer, snap observability.StageSnapshot) {
	fmt.Fprintf(out, "%-16s %6s %9s %9s %9s %9s\n", "stage", "n", "p50_ms", "p95_ms", "max_ms", "target")
	for _, st := range snap.Stages {
		fmt.Fprintf(out, "%-16s %6d %9.0f %9.0f %9.0f %9.0f\n", st.Stage, st.Samples, st.P50MS, st.P95MS, st.MaxMS, st.TargetP95MS)
	}
	for _, ind := range snap.Indicators {
		fmt.Fprintf(out, "indicator %s=%d\n", ind.Name, ind.Count)
	}
}
