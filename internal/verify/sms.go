package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/qsmarket/market-bot/internal/apperr"
)

// SMSClient sends codes through an HTTP SMS gateway.
type SMSClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

// NewSMSClient builds a gateway client. httpClient may be nil.
func NewSMSClient(baseURL, apiKey string, httpClient *http.Client, log *slog.Logger) *SMSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DeliveryTimeout}
	}
	if log == nil {
		log = slog.Default()
	}

	return &SMSClient{baseURL: baseURL, apiKey: apiKey, client: httpClient, log: log}
}

type smsRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendCode posts the code to the gateway. Any non-2xx response is a send
// failure.
func (c *SMSClient) SendCode(ctx context.Context, destination, code string) error {
	payload, err := json.Marshal(smsRequest{
		To:   destination,
		Text: fmt.Sprintf("Verification code: %s", code),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("sms gateway request failed", "error", err)
		return apperr.External("sms gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("sms gateway rejected message", "status", resp.StatusCode)
		return apperr.External("sms gateway", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
