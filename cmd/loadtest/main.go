// loadtest attaches many WebSocket clients to a board agent's UI feed and
// reports how long snapshot fan-out takes under load.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/archboard/internal/ws"
)

type sample struct {
	client int
	dur    time.Duration
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "feed address to target")
	clients := flag.Int("clients", 200, "number of concurrent feed clients")
	duration := flag.Duration("duration", 30*time.Second, "how long to listen")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := log.With().Str("addr", *addr).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	samples := make(chan sample, *clients*64)
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			conn, _, err := dialer.DialContext(ctx, *addr, nil)
			if err != nil {
				logger.Error().Err(err).Int("client", id).Msg("dial failed")
				return
			}
			defer conn.Close()

			go func() {
				<-ctx.Done()
				conn.Close()
			}()

			for {
				var evt ws.Event
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				received := time.Now()
				if err := json.Unmarshal(data, &evt); err != nil || evt.Type != "board" {
					continue
				}
				if evt.Document == nil || evt.Document.UpdatedAt.IsZero() {
					continue
				}
				samples <- sample{client: id, dur: received.Sub(evt.Document.UpdatedAt.Time)}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(samples)
	}()

	var durations []time.Duration
	for s := range samples {
		durations = append(durations, s.dur)
	}

	if len(durations) == 0 {
		logger.Warn().Msg("no board snapshots observed; is anyone editing?")
		return
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p := func(q float64) time.Duration {
		idx := int(q * float64(len(durations)-1))
		return durations[idx]
	}

	fmt.Printf("snapshots received: %d\n", len(durations))
	fmt.Printf("fan-out latency p50=%s p95=%s p99=%s max=%s\n", p(0.50), p(0.95), p(0.99), durations[len(durations)-1])
}
