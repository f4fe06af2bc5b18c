// Package notify forwards challenge material to the push notification server,
// which relays it to the employee's mobile application.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Typed delivery failures. The attempt is never rolled back on any of these;
// it stays pending and expires on its own TTL.
var (
	ErrPushTimeout     = errors.New("push server timeout")
	ErrPushUnavailable = errors.New("push server unreachable")
	ErrPushRejected    = errors.New("push server rejected notification")
)

// ChallengeMessage is the payload relayed to the device. Data carries the
// hex-encoded server public key and nonce; ServiceName lets the app render a
// consent prompt.
type ChallengeMessage struct {
	Message     string `json:"message"`
	AttemptID   string `json:"attempt_id"`
	EmpNo       string `json:"emp_no"`
	ClientID    string `json:"client_id"`
	ServiceName string `json:"service_name"`
	Data        string `json:"data"`
}

// Dispatcher posts challenge messages to the push server. Delivery is a
// single shot: retries are the caller's business, not this wrapper's.
type Dispatcher struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

func NewDispatcher(url string, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		url:    url,
		logger: logger,
	}
}

// Send delivers one challenge message, mapping transport failures to the
// typed errors above.
func (d *Dispatcher) Send(ctx context.Context, msg ChallengeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return d.mapTransportError(msg.AttemptID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("push server rejected notification",
			zap.String("attempt_id", msg.AttemptID),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrPushRejected, resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) mapTransportError(attemptID string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		d.logger.Warn("push server timed out", zap.String("attempt_id", attemptID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPushTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warn("push server timed out", zap.String("attempt_id", attemptID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPushTimeout, err)
	}
	d.logger.Warn("push server unreachable", zap.String("attempt_id", attemptID), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrPushUnavailable, err)
}
