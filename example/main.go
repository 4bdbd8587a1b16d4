package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/devpoll"
	"github.com/jpalmerr/devpoll/example/mockdevice"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// start the mock device (see mockdevice/)
	ln, err := net.Listen("tcp", "localhost:9999")
	if err != nil {
		logger.Error("failed to start mock device", "error", err)
		os.Exit(1)
	}
	device := mockdevice.New(mockdevice.Options{
		MinLatency:  20 * time.Millisecond,
		MaxLatency:  300 * time.Millisecond,
		FailureRate: 0.1,
		Logger:      logger,
	})
	go func() {
		if err := http.Serve(ln, device.Handler()); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("mock device error", "error", err)
		}
	}()
	defer ln.Close()

	// grid: one repeating status read per zone
	zones, err := devpoll.NewCommandGrid("zone",
		devpoll.WithURLTemplate("http://localhost:9999/cmd"),
		devpoll.WithPayloadTemplate("ZONE={{.zone}}&CMD=STATUS"),
		devpoll.WithDimensions(map[string][]string{
			"zone": {"1", "2", "3"},
		}),
		devpoll.WithGridRepeat(),
	)
	if err != nil {
		logger.Error("failed to create command grid", "error", err)
		os.Exit(1)
	}

	// status read rendered to a target and also parsed in Go
	status, err := devpoll.NewCommand("http://localhost:9999/status.xml",
		devpoll.WithTarget("status"),
		devpoll.WithRepeat(),
		devpoll.WithHandler(func(body *devpoll.Body) {
			if body == nil {
				return
			}
			if cds, ok := body.Field("CDS"); ok {
				logger.Debug("cds read", "value", cds)
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create command", "error", err)
		os.Exit(1)
	}

	q, err := devpoll.New(
		devpoll.WithCommands(zones...),
		devpoll.WithCommand(status),
		devpoll.WithTimeout(2*time.Second),
		devpoll.WithPort(8080),
		devpoll.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create queue", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  devpoll demo")
	fmt.Println()
	fmt.Println("  Targets:  http://localhost:8080/api/targets")
	fmt.Println("  Alerts:   http://localhost:8080/api/alerts")
	fmt.Println("  Live:     http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Change the device with:")
	fmt.Println(`    curl -X POST localhost:8080/api/commands \`)
	fmt.Println(`      -d '{"url":"http://localhost:9999/cmd","target":"set","payload":"CMD=SET&CDS=5"}'`)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := q.Start(ctx); err != nil {
		logger.Error("devpoll error", "error", err)
		os.Exit(1)
	}
}
