package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"odds-alert-service/logger"
	"odds-alert-service/models"
)

// TickPublisher 将变化 tick 扇出到下游订阅方
type TickPublisher interface {
	PublishOddsTick(tick *models.OddsTick)
	PublishStatusTick(tick *models.EventStatusTick)
}

// AMQPTickPublisher 将 tick 以 JSON 发布到 fanout exchange
type AMQPTickPublisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPTickPublisher 创建发布器并建立连接
func NewAMQPTickPublisher(url, exchange string) (*AMQPTickPublisher, error) {
	p := &AMQPTickPublisher{
		url:      url,
		exchange: exchange,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPTickPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.exchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = channel
	logger.Info.Printf("[AMQPPublisher] ✅ 已连接, exchange=%s", p.exchange)
	return nil
}

// publish 发布失败只记录日志, 不阻断采集主流程
func (p *AMQPTickPublisher) publish(routingKey string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error.Printf("[AMQPPublisher] ❌ 序列化失败: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		logger.Error.Printf("[AMQPPublisher] ❌ 发布失败 (%s): %v", routingKey, err)
	}
}

// PublishOddsTick 发布赔率变化
func (p *AMQPTickPublisher) PublishOddsTick(tick *models.OddsTick) {
	p.publish("odds.tick", tick)
}

// PublishStatusTick 发布状态变化
func (p *AMQPTickPublisher) PublishStatusTick(tick *models.EventStatusTick) {
	p.publish("status.tick", tick)
}

// Close 关闭连接
func (p *AMQPTickPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	logger.Info.Println("[AMQPPublisher] 🔌 连接已关闭")
}
