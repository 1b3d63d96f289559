package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Frame is the envelope of every push-channel message. "data_update"
// signals that the REST-backed collections are stale and must be
// re-fetched; "live_ticks" carries a batch of price updates.
type Frame struct {
	Event string `json:"event"`
	Data  []Tick `json:"data,omitempty"`
}

const (
	EventDataUpdate = "data_update"
	EventLiveTicks  = "live_ticks"
)

// Feed owns the persistent push connection to the data server.
type Feed struct{ url string }

func NewFeed(u string) Feed { return Feed{u} }

// Stream keeps the push connection alive until ctx is cancelled,
// reconnecting with exponential backoff after an unexpected close.
// Decoded tick batches go to ticks, full-refresh signals to refresh;
// recoverable errors are reported on errs without blocking.
func (f Feed) Stream(ctx context.Context, ticks chan<- []Tick, refresh chan<- struct{}, errs chan<- error, ping time.Duration) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := f.streamOnce(ctx, ticks, refresh, errs, ping); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Dur("backoff", backoff).Msg("push connection lost, reconnecting")
				select {
				case errs <- fmt.Errorf("feed reconnect: %w", err):
				default:
				}

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}

				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			// Reset backoff after a clean session.
			backoff = time.Second
		}
	}
}

func (f Feed) streamOnce(ctx context.Context, ticks chan<- []Tick, refresh chan<- struct{}, errs chan<- error, ping time.Duration) error {
	log.Info().Str("url", f.url).Msg("establishing push connection")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer func() {
		conn.Close()
		log.Debug().Msg("push connection closed")
	}()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

	conn.SetCloseHandler(func(code int, text string) error {
		log.Warn().Int("code", code).Str("text", text).Msg("push connection closed by server")
		return fmt.Errorf("connection closed: %d %s", code, text)
	})

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(ping)
	defer pingTicker.Stop()

	if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
		return fmt.Errorf("initial ping failed: %w", err)
	}

	lastDataReceived := time.Now()
	healthTicker := time.NewTicker(30 * time.Second)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				select {
				case errs <- fmt.Errorf("ping failed: %w", err):
				default:
				}
				return err
			}
		case <-healthTicker.C:
			if time.Since(lastDataReceived) > 60*time.Second {
				return fmt.Errorf("connection appears stale - no data for %v", time.Since(lastDataReceived))
			}
		default:
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Info().Msg("push connection closed normally")
					return err
				}
				return fmt.Errorf("read message failed: %w", err)
			}

			lastDataReceived = time.Now()

			frame, err := ParseFrame(msg)
			if err != nil {
				// Malformed frames are dropped; the channel stays open.
				log.Debug().Err(err).Str("message", string(msg)).Msg("dropping undecodable frame")
				continue
			}

			switch frame.Event {
			case EventDataUpdate:
				select {
				case refresh <- struct{}{}:
				default:
					// A refresh is already pending; signals coalesce.
				}
			case EventLiveTicks:
				if len(frame.Data) == 0 {
					continue
				}
				select {
				case ticks <- frame.Data:
				default:
					log.Warn().Int("ticks", len(frame.Data)).Msg("tick channel full, dropping batch")
				}
			default:
				log.Debug().Str("event", frame.Event).Msg("ignoring unknown push event")
			}
		}
	}
}

// ParseFrame decodes one raw push-channel message.
func ParseFrame(msg []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("frame missing event field")
	}
	return f, nil
}
