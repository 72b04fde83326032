// tracker is a terminal viewer for a shared tracking link: it polls the
// public endpoint the same way the web page does and prints each update.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/ribit-api/internal/client"
)

func main() {
	var (
		baseURL  string
		token    string
		interval time.Duration
	)
	flag.StringVar(&baseURL, "base-url", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "tracking token from the shared link")
	flag.DurationVar(&interval, "interval", client.DefaultInterval, "poll interval")
	flag.Parse()

	if token == "" {
		log.Fatal("-token is required")
	}

	p := &client.Poller{
		Fetcher:  client.NewHTTPFetcher(baseURL),
		Token:    token,
		Interval: interval,
		OnUpdate: printSnapshot,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer p.Stop()

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "bye")
}

func printSnapshot(s client.Snapshot) {
	switch s.State {
	case client.StateLoading:
		fmt.Println("loading tracking information...")
	case client.StateError:
		fmt.Printf("tracking not available: %v (last good data kept)\n", s.Err)
	case client.StateSuccess:
		if s.Refreshing {
			return // wait for the refresh to finish before reprinting
		}
		d := s.Data
		fmt.Printf("%s -> %s  date=%s time=%s\n", d.Ride.From, d.Ride.To, d.Ride.Date, d.Ride.Time)
		if d.LastCoordinate != nil {
			fmt.Printf("  driver at %.5f,%.5f as of %s (%d points)\n",
				d.LastCoordinate.Latitude, d.LastCoordinate.Longitude,
				d.LastCoordinate.Timestamp.Format(time.RFC3339), len(d.Coordinates))
		} else {
			fmt.Println("  no location data yet")
		}
	}
}
