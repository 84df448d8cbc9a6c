package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumasafe/guardian/internal/httpc"
)

// deliveryPollInterval paces the delivery-acknowledgment poll loop.
const deliveryPollInterval = 2 * time.Second

// GatewaySender submits messages to an HTTP SMS gateway. The gateway
// accepts POST /messages with {"to","body"} and answers with a message
// id and a send status; delivery is observed by polling
// GET /messages/{id} until the gateway reports a terminal state.
type GatewaySender struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Sender = (*GatewaySender)(nil)

func NewGatewaySender(baseURL, token string) *GatewaySender {
	return &GatewaySender{baseURL: baseURL, token: token, client: httpc.Client}
}

type gatewayMessage struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

func (g *GatewaySender) Send(ctx context.Context, phoneNumber, body string) (<-chan Status, error) {
	payload, err := json.Marshal(map[string]string{"to": phoneNumber, "body": body})
	if err != nil {
		return nil, fmt.Errorf("encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}

	var msg gatewayMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode sms response: %w", err)
	}

	out := make(chan Status, 2)
	out <- msg.Status
	if msg.Status != StatusSent {
		close(out)
		return out, nil
	}

	go func() {
		defer close(out)
		g.awaitDelivery(ctx, msg.ID, out)
	}()
	return out, nil
}

func (g *GatewaySender) awaitDelivery(ctx context.Context, id string, out chan<- Status) {
	t := time.NewTicker(deliveryPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		msg, err := g.fetchMessage(ctx, id)
		if err != nil {
			continue // transient; keep polling until ctx expires
		}
		if msg.Status == StatusDelivered || msg.Status.failed() {
			select {
			case out <- msg.Status:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (g *GatewaySender) fetchMessage(ctx context.Context, id string) (gatewayMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/messages/"+id, nil)
	if err != nil {
		return gatewayMessage{}, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return gatewayMessage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gatewayMessage{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var msg gatewayMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return gatewayMessage{}, err
	}
	return msg, nil
}
