// Command watch follows one round from a terminal. It reconciles its clock
// against the engine, subscribes to the gateway and prints the predicted
// state every second, nudging the engine when a timer has run out.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	rounddomain "github.com/Black-And-White-Club/lastword/app/modules/round/domain"
	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/clocksync"
	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/Black-And-White-Club/lastword/pkg/viewer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:      "watch",
		Usage:     "follow a round's countdowns live",
		ArgsUsage: "<round-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:8080", EnvVars: []string{"LASTWORD_API"}},
			&cli.StringFlag{Name: "gateway", Value: "ws://localhost:8081", EnvVars: []string{"LASTWORD_GATEWAY"}},
			&cli.DurationFlag{Name: "resync", Value: clocksync.DefaultResyncInterval},
			&cli.DurationFlag{Name: "interval", Value: time.Second},
			&cli.BoolFlag{Name: "no-nudge", Usage: "never ask the engine for a lifecycle pass"},
			&cli.BoolFlag{Name: "verbose"},
		},
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	roundID, err := uuid.Parse(c.Args().First())
	if err != nil {
		return fmt.Errorf("a round id is required: %w", err)
	}

	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := strings.TrimRight(c.String("api"), "/")
	reconciler := clocksync.NewReconciler(
		clocksync.NewHTTPTimeSource(api+"/api/time"),
		clocksync.WithResyncInterval(c.Duration("resync")),
		clocksync.WithLogger(logger),
	)
	if _, err := reconciler.Sync(ctx); err != nil {
		logger.WarnContext(ctx, "Initial clock sync failed, using the local clock", attr.Error(err))
	}
	go reconciler.Run(ctx)

	var nudger viewer.Nudger
	if !c.Bool("no-nudge") {
		nudger = viewer.NewHTTPNudger(api + "/api/tick?round_id=" + roundID.String())
	}
	v := viewer.New(reconciler, nudger, logger)

	updates := make(chan roundevents.RoundSnapshotV1, 8)
	if snap, err := fetchRound(ctx, api, roundID); err == nil {
		updates <- *snap
	} else {
		logger.WarnContext(ctx, "Could not load round", attr.Error(err))
	}

	gateway := strings.TrimRight(c.String("gateway"), "/") + "/ws/rounds/" + roundID.String()
	go follow(ctx, gateway, updates, logger)

	v.Run(ctx, updates, clockwork.NewRealClock(), c.Duration("interval"), render)
	return nil
}

func fetchRound(ctx context.Context, api string, id uuid.UUID) (*roundevents.RoundSnapshotV1, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api+"/api/rounds/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("round lookup returned %s", resp.Status)
	}
	var snap roundevents.RoundSnapshotV1
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}
	return &snap, nil
}

// follow keeps a gateway connection open, reconnecting with backoff, and
// forwards every change's snapshot.
func follow(ctx context.Context, url string, out chan<- roundevents.RoundSnapshotV1, logger *slog.Logger) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			logger.WarnContext(ctx, "Gateway dial failed", attr.String("url", url), attr.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()
		for {
			var change roundevents.RoundChangedPayloadV1
			if err := conn.ReadJSON(&change); err != nil {
				logger.DebugContext(ctx, "Gateway connection closed", attr.Error(err))
				break
			}
			select {
			case out <- change.Round:
			case <-ctx.Done():
			}
		}
		close(done)
		conn.Close()
	}
}

func render(p viewer.Prediction) {
	line := fmt.Sprintf("%s  %-9s", p.At.Format("15:04:05"), p.Predicted)
	switch p.Predicted {
	case rounddomain.StatusScheduled:
		line += fmt.Sprintf("  opens in %ds", p.SecondsUntilOpening)
	case rounddomain.StatusWaiting, rounddomain.StatusOpening:
		line += fmt.Sprintf("  live in %ds", p.SecondsUntilLive)
	case rounddomain.StatusLive, rounddomain.StatusEnding:
		line += fmt.Sprintf("  last word wins in %ds (hard stop %ds)", p.SecondsUntilActivityDeadline, p.SecondsRemaining)
	case rounddomain.StatusEnded, rounddomain.StatusSettled, rounddomain.StatusCancelled:
	}
	if p.Predicted != p.Confirmed {
		line += fmt.Sprintf("  [store: %s]", p.Confirmed)
	}
	fmt.Println(line)
}
