package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paraScope/internal/format"
)

// SubscriberConfig configures the finalized-head websocket subscription.
type SubscriberConfig struct {
	URL            string
	MaxRetries     int           // reconnect attempts before giving up (default 25)
	ReconnectDelay time.Duration // linear backoff step (default 1s)
}

// HashHandler receives each finalized block hash in order.
type HashHandler func(hash []byte) error

// Subscriber follows chain_subscribeFinalizedHeads and reconnects on drops.
type Subscriber struct {
	cfg    SubscriberConfig
	logger *zap.Logger
	dialer *websocket.Dialer
}

func NewSubscriber(cfg SubscriberConfig, logger *zap.Logger) *Subscriber {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 25
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{cfg: cfg, logger: logger, dialer: websocket.DefaultDialer}
}

// Run blocks until ctx ends, the handler fails, or reconnects are exhausted.
func (s *Subscriber) Run(ctx context.Context, onHash HashHandler) error {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
		if err == nil {
			s.logger.Info("finalized head subscription connected", zap.String("url", s.cfg.URL))
			started := time.Now()
			err = s.listen(ctx, conn, onHash)
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var herr handlerError
			if errors.As(err, &herr) {
				return herr.err
			}
			s.logger.Warn("finalized head subscription dropped",
				zap.String("url", s.cfg.URL),
				zap.Duration("uptime", time.Since(started).Round(time.Second)),
				zap.Error(err),
			)
			attempt = 0
			continue
		}

		s.logger.Warn("finalized head subscription dial failed",
			zap.String("url", s.cfg.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		delay := time.Duration(attempt+1) * s.cfg.ReconnectDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("subscribe %s: max retries (%d) reached: %w", s.cfg.URL, s.cfg.MaxRetries, ErrTransportFatal)
}

type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Method string `json:"method,omitempty"`
	Params *struct {
		Subscription json.RawMessage `json:"subscription"`
		Result       headerJSON      `json:"result"`
	} `json:"params,omitempty"`
}

func (s *Subscriber) listen(ctx context.Context, conn *websocket.Conn, onHash HashHandler) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "chain_subscribeFinalizedHeads", Params: []any{}}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("finalized head message unmarshal failed", zap.Int("data_len", len(data)), zap.Error(err))
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("subscribe rejected: %d %s", msg.Error.Code, msg.Error.Message)
		}
		if msg.Params == nil {
			continue
		}
		header, err := msg.Params.Result.encode()
		if err != nil {
			s.logger.Warn("finalized header encode failed", zap.Error(err))
			continue
		}
		hash := format.HeaderHash(header)
		if err := onHash(hash[:]); err != nil {
			return handlerError{err: err}
		}
	}
}
