package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/store"
)

// 预警元数据缓存的 TTL
const alertCacheTTL = 5 * time.Minute

// 最近 tick 的保存时长
const latestTickTTL = 48 * time.Hour

// PostgresRepository 生产仓储: Postgres 持久化 + Redis 读穿缓存
type PostgresRepository struct {
	db    *sql.DB
	cache store.KeyValueStore // 可为 nil, 此时每次直接查库
}

// NewPostgresRepository 创建生产仓储
func NewPostgresRepository(db *sql.DB, cache store.KeyValueStore) *PostgresRepository {
	return &PostgresRepository{db: db, cache: cache}
}

// ListMatchingAlerts 先查 Redis 市场索引, 未命中时查库并回填索引
func (r *PostgresRepository) ListMatchingAlerts(ctx context.Context, tick *models.OddsTick) ([]*models.StoredAlert, error) {
	if r.cache != nil {
		alerts, ok := r.listFromCache(ctx, tick)
		if ok {
			return alerts, nil
		}
	}

	alerts, err := r.listFromDB(ctx, tick)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.fillCache(ctx, tick, alerts)
	}
	return alerts, nil
}

func (r *PostgresRepository) listFromCache(ctx context.Context, tick *models.OddsTick) ([]*models.StoredAlert, bool) {
	indexKey := store.AlertMarketIndexKey(tick.EventID, tick.OddID, tick.BookmakerID)
	ids, err := r.cache.SMembers(ctx, indexKey)
	if err != nil || len(ids) == 0 {
		return nil, false
	}

	alerts := make([]*models.StoredAlert, 0, len(ids))
	for _, id := range ids {
		raw, err := r.cache.Get(ctx, store.AlertMetaKey(id))
		if err != nil {
			// 任何一条元数据缺失就整体回源, 保证一致性
			return nil, false
		}
		var alert models.StoredAlert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			return nil, false
		}
		alerts = append(alerts, &alert)
	}
	return alerts, true
}

func (r *PostgresRepository) fillCache(ctx context.Context, tick *models.OddsTick, alerts []*models.StoredAlert) {
	indexKey := store.AlertMarketIndexKey(tick.EventID, tick.OddID, tick.BookmakerID)
	for _, alert := range alerts {
		raw, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		if err := r.cache.Set(ctx, store.AlertMetaKey(alert.ID), string(raw), alertCacheTTL); err != nil {
			logger.Errorf("[Repository] Failed to cache alert meta %s: %v", alert.ID, err)
			continue
		}
		if err := r.cache.SAdd(ctx, indexKey, alert.ID); err != nil {
			logger.Errorf("[Repository] Failed to index alert %s: %v", alert.ID, err)
			continue
		}
		if err := r.cache.SAdd(ctx, store.UserAlertIndexKey(alert.UserID), alert.ID); err != nil {
			logger.Errorf("[Repository] Failed to index user alert %s: %v", alert.ID, err)
		}
	}
	if len(alerts) > 0 {
		if err := r.cache.Expire(ctx, indexKey, alertCacheTTL); err != nil {
			logger.Errorf("[Repository] Failed to expire alert index: %v", err)
		}
	}
}

func (r *PostgresRepository) listFromDB(ctx context.Context, tick *models.OddsTick) ([]*models.StoredAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, event_id, odd_id, bookmaker_id, comparator, target_value,
		       target_metric, time_window, one_shot, cooldown_seconds, available_required,
		       channels, rule_type, market_type, team_side, last_fired_at
		FROM alerts
		WHERE event_id = $1 AND odd_id = $2 AND bookmaker_id = $3 AND enabled = TRUE`,
		tick.EventID, tick.OddID, tick.BookmakerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.StoredAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlert(rows *sql.Rows) (*models.StoredAlert, error) {
	var alert models.StoredAlert
	var oneShot, availableRequired bool
	var channels string
	var ruleType, marketType, teamSide sql.NullString

	err := rows.Scan(&alert.ID, &alert.UserID, &alert.EventID, &alert.OddID,
		&alert.BookmakerID, &alert.Comparator, &alert.TargetValue, &alert.TargetMetric,
		&alert.TimeWindow, &oneShot, &alert.CooldownSeconds, &availableRequired,
		&channels, &ruleType, &marketType, &teamSide, &alert.LastFiredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	alert.OneShot = &oneShot
	alert.AvailableRequired = &availableRequired
	if channels != "" {
		alert.Channels = strings.Split(channels, ",")
	}
	alert.RuleType = ruleType.String
	alert.MarketType = marketType.String
	alert.TeamSide = teamSide.String
	return &alert, nil
}

// GetPreviousTick 从 Redis 读取同一市场的上一次 tick
func (r *PostgresRepository) GetPreviousTick(ctx context.Context, tick *models.OddsTick) (*models.OddsTick, error) {
	if r.cache == nil {
		return nil, nil
	}

	raw, err := r.cache.Get(ctx, store.LatestTickKey(tick.EventID, tick.OddID, tick.BookmakerID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous tick: %w", err)
	}

	var prev models.OddsTick
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal previous tick: %w", err)
	}
	return &prev, nil
}

// SaveLatestTick 保存 tick 供后续 crosses 比较
func (r *PostgresRepository) SaveLatestTick(ctx context.Context, tick *models.OddsTick) error {
	if r.cache == nil {
		return nil
	}

	raw, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to marshal tick: %w", err)
	}
	return r.cache.Set(ctx, store.LatestTickKey(tick.EventID, tick.OddID, tick.BookmakerID), string(raw), latestTickTTL)
}

// TryCreateFiring 依赖 (alert_id, firing_key) 唯一索引做幂等插入
func (r *PostgresRepository) TryCreateFiring(ctx context.Context, params FiringParams) (string, error) {
	id := uuid.New().String()

	var insertedID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO alert_firings (id, alert_id, firing_key, event_id, odd_id, bookmaker_id, current_odds, line, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (alert_id, firing_key) DO NOTHING
		RETURNING id`,
		id, params.AlertID, params.FiringKey, params.EventID, params.OddID,
		params.BookmakerID, params.CurrentOdds, params.Line, params.ObservedAt).Scan(&insertedID)
	if errors.Is(err, sql.ErrNoRows) {
		// 冲突意味着该 tick 已经触发过, 属于预期的并发控制路径
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create firing: %w", err)
	}
	return insertedID, nil
}

// MarkAlertFired 回写 last_fired_at 并失效缓存的元数据
func (r *PostgresRepository) MarkAlertFired(ctx context.Context, alertID string, firedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET last_fired_at = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		alertID, firedAt)
	if err != nil {
		return fmt.Errorf("failed to mark alert fired: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Del(ctx, store.AlertMetaKey(alertID)); err != nil {
			logger.Errorf("[Repository] Failed to invalidate alert meta %s: %v", alertID, err)
		}
	}
	return nil
}

// ResolveDestination 查询用户某渠道的地址
func (r *PostgresRepository) ResolveDestination(ctx context.Context, userID, channel string) (string, error) {
	var destination string
	err := r.db.QueryRowContext(ctx,
		`SELECT destination FROM user_destinations WHERE user_id = $1 AND channel = $2`,
		userID, channel).Scan(&destination)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no %s destination for user %s", channel, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination: %w", err)
	}
	return destination, nil
}

// RecordDelivery 追加投递审计记录
func (r *PostgresRepository) RecordDelivery(ctx context.Context, delivery *models.NotificationDelivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries (alert_firing_id, channel, destination, status, attempt_number, provider_message_id, error_text)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))`,
		delivery.AlertFiringID, delivery.Channel, delivery.Destination, delivery.Status,
		delivery.AttemptNumber, delivery.ProviderMessageID, delivery.ErrorText)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}
