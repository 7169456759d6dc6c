package notify

import (
	"context"
	"fmt"

	"odds-alert-service/models"
)

// 通知渠道
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelPush    = "push"
	ChannelWebhook = "webhook"
)

// Sender 通知发送契约
// 任何返回的错误都会触发 NotificationWorker 的重试策略, 无需区分错误类型
type Sender interface {
	Send(ctx context.Context, channel, destination string, job *models.NotificationJob) (string, error)
}

// Router 按渠道分发到具体 Sender
type Router struct {
	senders map[string]Sender
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{senders: make(map[string]Sender)}
}

// Register 注册渠道的发送器
func (r *Router) Register(channel string, sender Sender) {
	r.senders[channel] = sender
}

// Send 分发到对应渠道的发送器
func (r *Router) Send(ctx context.Context, channel, destination string, job *models.NotificationJob) (string, error) {
	sender, ok := r.senders[channel]
	if !ok {
		return "", fmt.Errorf("no sender registered for channel %s", channel)
	}
	return sender.Send(ctx, channel, destination, job)
}
