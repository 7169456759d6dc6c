package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"odds-alert-service/models"
)

const (
	// QoSAtLeastOnce 推送通知使用至少一次投递
	QoSAtLeastOnce = 1

	publishTimeout = 10 * time.Second
)

// MQTTPushSender 通过 MQTT broker 向用户的推送主题发布通知
// destination 即推送主题, 例如 "users/{userID}/alerts"
type MQTTPushSender struct {
	client mqtt.Client
}

// NewMQTTPushSender 连接 broker 并创建推送发送器
func NewMQTTPushSender(brokerURL, username, password string) (*MQTTPushSender, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetClientID(fmt.Sprintf("odds_alert_push_%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", token.Error())
	}

	return &MQTTPushSender{client: client}, nil
}

// PushMessage 推送消息体
type PushMessage struct {
	MessageID string                  `json:"message_id"`
	Alert     *models.NotificationJob `json:"alert"`
}

// Send 发布推送通知
func (s *MQTTPushSender) Send(ctx context.Context, channel, destination string, job *models.NotificationJob) (string, error) {
	messageID := uuid.New().String()

	payload, err := json.Marshal(PushMessage{MessageID: messageID, Alert: job})
	if err != nil {
		return "", fmt.Errorf("failed to marshal push message: %w", err)
	}

	token := s.client.Publish(destination, QoSAtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return "", fmt.Errorf("mqtt publish timeout")
	}
	if token.Error() != nil {
		return "", fmt.Errorf("failed to publish: %w", token.Error())
	}

	return messageID, nil
}

// Close 断开 broker 连接
func (s *MQTTPushSender) Close() {
	s.client.Disconnect(250)
}
