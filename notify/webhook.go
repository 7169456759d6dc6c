package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"odds-alert-service/models"
)

// WebhookSender 向用户配置的 webhook URL 推送 JSON 消息
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender 创建 webhook 发送器
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
	}
}

// WebhookPayload webhook 消息体
type WebhookPayload struct {
	Type        string                  `json:"type"`
	MessageID   string                  `json:"message_id"`
	Alert       *models.NotificationJob `json:"alert"`
	DeliveredAt string                  `json:"delivered_at"`
}

// Send 发送 webhook 通知
func (s *WebhookSender) Send(ctx context.Context, channel, destination string, job *models.NotificationJob) (string, error) {
	messageID := uuid.New().String()
	payload := WebhookPayload{
		Type:        "odds_alert",
		MessageID:   messageID,
		Alert:       job,
		DeliveredAt: time.Now().UTC().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return messageID, nil
}
