package notify

import (
	"context"
	"fmt"
	"time"

	"wisefido-pose/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookNotifier 以 HTTP POST 推送告警到监护人通知网关
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// SendFallAlert 推送告警，非 2xx 视为失败
func (n *WebhookNotifier) SendFallAlert(ctx context.Context, event *models.FallEvent) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(models.NewFallAlert(event)).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call fall alert webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fall alert webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Fall alert webhook delivered",
		zap.String("event_id", event.ID),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
