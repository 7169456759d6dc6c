package repository

import (
	"context"
	"time"

	"odds-alert-service/models"
)

// FiringParams 创建预警触发的参数
type FiringParams struct {
	AlertID     string
	FiringKey   string
	EventID     string
	OddID       string
	BookmakerID string
	CurrentOdds int
	Line        *float64
	ObservedAt  time.Time
}

// AlertRepository AlertWorker 消费的仓储契约
type AlertRepository interface {
	// ListMatchingAlerts 返回匹配该 tick 市场的启用规则
	ListMatchingAlerts(ctx context.Context, tick *models.OddsTick) ([]*models.StoredAlert, error)

	// GetPreviousTick 返回同一市场上一次保存的 tick, 没有时返回 nil
	GetPreviousTick(ctx context.Context, tick *models.OddsTick) (*models.OddsTick, error)

	// SaveLatestTick 保存 tick 作为后续 crosses 比较的 "上一次"
	SaveLatestTick(ctx context.Context, tick *models.OddsTick) error

	// TryCreateFiring 幂等创建触发记录, 返回触发 ID
	// 返回空字符串表示 (alertId, firingKey) 已存在, 即重复 tick, 调用方按无操作处理
	TryCreateFiring(ctx context.Context, params FiringParams) (string, error)

	// MarkAlertFired 回写规则的最近触发时间
	MarkAlertFired(ctx context.Context, alertID string, firedAt time.Time) error
}

// NotificationRepository NotificationWorker 消费的仓储契约
type NotificationRepository interface {
	// ResolveDestination 解析用户在某渠道的地址
	ResolveDestination(ctx context.Context, userID, channel string) (string, error)

	// RecordDelivery 追加一条投递审计记录, 永不更新
	RecordDelivery(ctx context.Context, delivery *models.NotificationDelivery) error
}
