package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const defaultStreamURL = "wss://stream.binance.com:9443"

// miniTicker is one entry of the combined-stream miniTicker payload.
type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

// streamEnvelope wraps combined-stream messages.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// PriceStream maintains a live view of last-trade prices for a fixed set of
// symbols over the Binance combined miniTicker websocket. It reconnects with
// backoff until its context is cancelled.
type PriceStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]float64

	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

// NewPriceStream builds a stream for the given symbols. baseURL may be empty
// to use the production endpoint.
func NewPriceStream(baseURL string, symbols []string) *PriceStream {
	if baseURL == "" {
		baseURL = defaultStreamURL
	}
	return &PriceStream{
		url:     baseURL,
		symbols: symbols,
		prices:  make(map[string]float64, len(symbols)),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Price returns the last observed price for symbol, or false when no tick has
// arrived yet.
func (s *PriceStream) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Snapshot returns a copy of every known price.
func (s *PriceStream) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// Run blocks, reading ticks until ctx is cancelled. Connection failures are
// retried with capped exponential backoff.
func (s *PriceStream) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("price stream: no symbols")
	}

	backoff := time.Second
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("price stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *PriceStream) runOnce(ctx context.Context) error {
	conn, err := s.dial(ctx, s.streamURL())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// The watcher unblocks ReadJSON on cancellation and must itself exit
	// when this connection is torn down, or every reconnect would strand
	// one goroutine holding the dead conn.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	log.Info().Int("symbols", len(s.symbols)).Msg("price stream connected")
	for {
		var env streamEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var tick miniTicker
		if err := json.Unmarshal(env.Data, &tick); err != nil {
			continue
		}
		price := parseFloat(tick.Close)
		if tick.Symbol == "" || price <= 0 {
			continue
		}
		s.mu.Lock()
		s.prices[tick.Symbol] = price
		s.mu.Unlock()
	}
}

func (s *PriceStream) streamURL() string {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	return s.url + "/stream?streams=" + strings.Join(streams, "/")
}
