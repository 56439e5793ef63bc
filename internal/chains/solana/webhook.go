// internal/chains/solana/webhook.go
package solana

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultHeliusURL = "https://api.helius.xyz"

// HeliusWebhooks removes address-activity webhooks once an address is swept
type HeliusWebhooks struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

func NewHeliusWebhooks(baseURL, apiKey string, logger *zap.Logger) *HeliusWebhooks {
	if baseURL == "" {
		baseURL = defaultHeliusURL
	}

	return &HeliusWebhooks{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// DeleteWebhook is idempotent: an already removed webhook is not an error
func (h *HeliusWebhooks) DeleteWebhook(ctx context.Context, webhookID string) error {
	endpoint := fmt.Sprintf("%s/v0/webhooks/%s?api-key=%s",
		h.baseURL, url.PathEscape(webhookID), url.QueryEscape(h.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delete failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		h.logger.Info("Webhook deleted", zap.String("webhook_id", webhookID))
		return nil
	case resp.StatusCode == http.StatusNotFound:
		h.logger.Debug("Webhook already gone", zap.String("webhook_id", webhookID))
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook delete failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
