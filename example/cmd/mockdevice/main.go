// Standalone mock device for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockdevice
//
// Then in another terminal:
//
//	go run ./cmd/devpoll serve -c example/devpoll.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/devpoll/example/mockdevice"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	failureRate := flag.Float64("failure-rate", 0.1, "fraction of requests answered with HTTP 500")
	maxLatency := flag.Duration("max-latency", 200*time.Millisecond, "upper bound of the response delay")
	flag.Parse()

	fmt.Printf("Mock device starting on %s\n", *addr)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	device := mockdevice.New(mockdevice.Options{
		MinLatency:  20 * time.Millisecond,
		MaxLatency:  *maxLatency,
		FailureRate: *failureRate,
		Logger:      logger,
	})

	if err := http.ListenAndServe(*addr, device.Handler()); err != nil {
		logger.Error("mock device error", "error", err)
		os.Exit(1)
	}
}
