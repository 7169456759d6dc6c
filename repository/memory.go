package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"odds-alert-service/models"
)

// MemoryRepository 测试用内存仓储, 实现 AlertRepository 和 NotificationRepository
type MemoryRepository struct {
	mu           sync.Mutex
	alerts       map[string]*models.StoredAlert
	latestTicks  map[string]*models.OddsTick
	firings      map[string]string // "alertID/firingKey" → firingID
	destinations map[string]string // "userID/channel" → destination
	deliveries   []*models.NotificationDelivery
}

// NewMemoryRepository 创建内存仓储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts:       make(map[string]*models.StoredAlert),
		latestTicks:  make(map[string]*models.OddsTick),
		firings:      make(map[string]string),
		destinations: make(map[string]string),
	}
}

// AddAlert 注册一条规则
func (r *MemoryRepository) AddAlert(alert *models.StoredAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alert.ID] = alert
}

// SetDestination 注册用户渠道地址
func (r *MemoryRepository) SetDestination(userID, channel, destination string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[userID+"/"+channel] = destination
}

// Deliveries 返回全部投递记录
func (r *MemoryRepository) Deliveries() []*models.NotificationDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.NotificationDelivery(nil), r.deliveries...)
}

func (r *MemoryRepository) ListMatchingAlerts(ctx context.Context, tick *models.OddsTick) ([]*models.StoredAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.StoredAlert
	for _, alert := range r.alerts {
		if alert.EventID == tick.EventID && alert.OddID == tick.OddID && alert.BookmakerID == tick.BookmakerID {
			matched = append(matched, alert)
		}
	}
	return matched, nil
}

func (r *MemoryRepository) GetPreviousTick(ctx context.Context, tick *models.OddsTick) (*models.OddsTick, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestTicks[tick.MarketKey()], nil
}

func (r *MemoryRepository) SaveLatestTick(ctx context.Context, tick *models.OddsTick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestTicks[tick.MarketKey()] = tick
	return nil
}

func (r *MemoryRepository) TryCreateFiring(ctx context.Context, params FiringParams) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := params.AlertID + "/" + params.FiringKey
	if _, exists := r.firings[key]; exists {
		return "", nil
	}
	id := uuid.New().String()
	r.firings[key] = id
	return id, nil
}

func (r *MemoryRepository) MarkAlertFired(ctx context.Context, alertID string, firedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s not found", alertID)
	}
	t := firedAt
	alert.LastFiredAt = &t
	return nil
}

func (r *MemoryRepository) ResolveDestination(ctx context.Context, userID, channel string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	destination, ok := r.destinations[userID+"/"+channel]
	if !ok {
		return "", fmt.Errorf("no %s destination for user %s", channel, userID)
	}
	return destination, nil
}

func (r *MemoryRepository) RecordDelivery(ctx context.Context, delivery *models.NotificationDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *delivery
	r.deliveries = append(r.deliveries, &copied)
	return nil
}
