// Command example polls a local ClubLog mock in coordinator mode, the way a
// host automation platform drives the SDK, and prints the sensor states.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/clublogbridge"
	"github.com/jpalmerr/clublogbridge/clublog"
)

func main() {
	go StartMockClubLog(":9999")
	time.Sleep(100 * time.Millisecond)

	coord, err := clublogbridge.NewCoordinator(
		clublog.Credentials{
			APIKey:      "demo",
			Email:       "demo@example.com",
			AppPassword: "demo",
			Callsign:    "M0ABC",
		},
		clublogbridge.WithBaseURL("http://localhost:9999"),
		clublogbridge.WithStagger(time.Second),
		clublogbridge.WithInterval(clublogbridge.EndpointWatch, 20*time.Second),
	)
	if err != nil {
		slog.Error("failed to create coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	fmt.Println()
	fmt.Println("  ClubLog bridge demo (coordinator mode)")
	fmt.Println("  Mock ClubLog on http://localhost:9999, watch refreshed every ~20s")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// a real host would not poll faster than clublogbridge.MinCoordinatorInterval
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		data, err := coord.Update(ctx)
		if err != nil {
			slog.Error("update failed", "error", err)
		}
		for _, s := range data.Readings() {
			fmt.Printf("  %-24s %s\n", s.ID, s.State)
		}
		fmt.Println()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
