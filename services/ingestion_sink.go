package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/store"
)

const (
	// 进行中赛事的赔率至少保留这么久
	liveQuoteRetention = 15 * time.Minute

	// 结束/终结后的保留时长
	finishedQuoteRetention = 90 * time.Minute
)

// OddsQuoteSnapshot 供应商返回的单个市场/bookmaker 赔率快照
type OddsQuoteSnapshot struct {
	EventID         string
	OddID           string
	BookmakerID     string
	Price           string // 美式赔率字符串, 例如 "-110", "+120"
	Spread          string // 可选盘口线
	OverUnder       string // Spread 缺失时的回退盘口线
	Available       bool
	VendorUpdatedAt *time.Time
	ObservedAt      time.Time
}

// IngestionSink 把规范化 tick 写入缓存并在字段变化时追加到流
type IngestionSink struct {
	store        store.Store
	streamMaxLen int64
}

// NewIngestionSink 创建写入器, streamMaxLen = 0 表示不裁剪
func NewIngestionSink(st store.Store, streamMaxLen int64) *IngestionSink {
	return &IngestionSink{store: st, streamMaxLen: streamMaxLen}
}

// ParseAmericanOdds 解析美式赔率: 可选正负号的纯整数
func ParseAmericanOdds(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseLine 先取 spread, 缺失时回退 over/under
func parseLine(spread, overUnder string) *float64 {
	for _, raw := range []string{spread, overUnder} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return &value
	}
	return nil
}

// quoteTTL 按赛事状态/开赛距离计算缓存 TTL
func quoteTTL(status *models.EventStatusTick, now time.Time) time.Duration {
	if status == nil {
		return 24 * time.Hour
	}
	if status.Ended || status.Finalized {
		return finishedQuoteRetention
	}
	if status.Started || status.Live {
		return liveQuoteRetention
	}
	if status.StartsAt == nil {
		return 24 * time.Hour
	}

	until := status.StartsAt.Sub(now)
	switch {
	case until <= 24*time.Hour:
		return 6 * time.Hour
	case until <= 72*time.Hour:
		return 24 * time.Hour
	case until <= 168*time.Hour:
		return 48 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// BuildOddsTick 把快照解析为规范化 tick, 赔率解析失败返回 nil
func BuildOddsTick(snap OddsQuoteSnapshot) *models.OddsTick {
	price, ok := ParseAmericanOdds(snap.Price)
	if !ok {
		return nil
	}

	return &models.OddsTick{
		EventID:         snap.EventID,
		OddID:           snap.OddID,
		BookmakerID:     snap.BookmakerID,
		CurrentOdds:     price,
		Line:            parseLine(snap.Spread, snap.OverUnder),
		Available:       snap.Available,
		VendorUpdatedAt: snap.VendorUpdatedAt,
		ObservedAt:      snap.ObservedAt,
	}
}

// WriteOddsTick 写入赔率缓存, 稳定字段变化时追加一条流记录
func (s *IngestionSink) WriteOddsTick(ctx context.Context, status *models.EventStatusTick, tick *models.OddsTick) error {
	raw, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to marshal odds tick: %w", err)
	}

	ttl := quoteTTL(status, tick.ObservedAt)
	key := store.MarketQuoteKey(tick.EventID, tick.OddID, tick.BookmakerID)

	changed := true
	prevRaw, err := s.store.SetGetPrevious(ctx, key, string(raw), ttl)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to replace quote: %w", err)
	}
	if err == nil {
		var prev models.OddsTick
		if unmarshalErr := json.Unmarshal([]byte(prevRaw), &prev); unmarshalErr == nil {
			changed = prev.CurrentOdds != tick.CurrentOdds ||
				!models.LineEqual(prev.Line, tick.Line) ||
				prev.Available != tick.Available
		}
	}

	if changed {
		if _, err := s.store.XAdd(ctx, store.StreamOddsTicks, OddsTickFields(tick), s.streamMaxLen); err != nil {
			return fmt.Errorf("failed to append odds tick: %w", err)
		}
	}

	// bookmaker 永远注册到赛事的 book 集合, 与是否变化无关
	booksKey := store.EventBooksKey(tick.EventID)
	if err := s.store.SAdd(ctx, booksKey, tick.BookmakerID); err != nil {
		logger.Errorf("[Sink] Failed to register bookmaker %s: %v", tick.BookmakerID, err)
	} else if err := s.store.Expire(ctx, booksKey, ttl); err != nil {
		logger.Errorf("[Sink] Failed to expire book set for %s: %v", tick.EventID, err)
	}

	return nil
}

// WriteOddsQuote 解析快照并写入, 赔率解析失败返回 (nil, nil), 不中断整个周期
func (s *IngestionSink) WriteOddsQuote(ctx context.Context, status *models.EventStatusTick, snap OddsQuoteSnapshot) (*models.OddsTick, error) {
	tick := BuildOddsTick(snap)
	if tick == nil {
		return nil, nil
	}
	if err := s.WriteOddsTick(ctx, status, tick); err != nil {
		return nil, err
	}
	return tick, nil
}

// statusStableFields 状态变更检测参与比较的字段
type statusStableFields struct {
	LeagueID  string
	SportID   string
	StartsAt  string
	Started   bool
	Ended     bool
	Finalized bool
	Cancelled bool
	Live      bool
	Period    string
	Clock     string
	HomeScore string
	AwayScore string
}

func stableFieldsOf(t *models.EventStatusTick) statusStableFields {
	return statusStableFields{
		LeagueID:  t.LeagueID,
		SportID:   t.SportID,
		StartsAt:  formatTimePtr(t.StartsAt),
		Started:   t.Started,
		Ended:     t.Ended,
		Finalized: t.Finalized,
		Cancelled: t.Cancelled,
		Live:      t.Live,
		Period:    t.Period,
		Clock:     t.Clock,
		HomeScore: formatIntPtr(t.HomeScore),
		AwayScore: formatIntPtr(t.AwayScore),
	}
}

// WriteEventStatus 写入状态缓存, 任一稳定字段变化时追加到状态流
// 返回是否产生了变更记录
func (s *IngestionSink) WriteEventStatus(ctx context.Context, status *models.EventStatusTick) (bool, error) {
	raw, err := json.Marshal(status)
	if err != nil {
		return false, fmt.Errorf("failed to marshal status tick: %w", err)
	}

	ttl := quoteTTL(status, status.ObservedAt)
	key := store.EventStatusKey(status.EventID)

	changed := true
	prevRaw, err := s.store.SetGetPrevious(ctx, key, string(raw), ttl)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to replace status: %w", err)
	}
	if err == nil {
		var prev models.EventStatusTick
		if unmarshalErr := json.Unmarshal([]byte(prevRaw), &prev); unmarshalErr == nil {
			changed = stableFieldsOf(&prev) != stableFieldsOf(status)
		}
	}

	if !changed {
		return false, nil
	}

	if _, err := s.store.XAdd(ctx, store.StreamEventStatusTicks, StatusTickFields(status), s.streamMaxLen); err != nil {
		return false, fmt.Errorf("failed to append status tick: %w", err)
	}
	return true, nil
}
