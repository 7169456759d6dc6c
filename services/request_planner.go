package services

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/store"
)

// ScheduledPoll 一次计划好的供应商请求
type ScheduledPoll struct {
	Lifecycle Lifecycle
	EventIDs  []string
}

// RequestPlanner 把到期赛事按生命周期分组并切块, 受令牌桶预算约束
type RequestPlanner struct {
	store               store.KeyValueStore
	bucket              *TokenBucket
	maxEventsPerRequest int
	seed                func() float64
}

// NewRequestPlanner 创建请求规划器
func NewRequestPlanner(kv store.KeyValueStore, bucket *TokenBucket, maxEventsPerRequest int) *RequestPlanner {
	if maxEventsPerRequest < 1 {
		maxEventsPerRequest = 1
	}
	return &RequestPlanner{
		store:               kv,
		bucket:              bucket,
		maxEventsPerRequest: maxEventsPerRequest,
		seed:                rand.Float64,
	}
}

// SetSeed 固定抖动种子, 仅测试使用
func (p *RequestPlanner) SetSeed(seed func() float64) {
	p.seed = seed
}

// isDue 记录的下次轮询时间 ≤ now 即到期, 没有记录视为立即到期
func (p *RequestPlanner) isDue(ctx context.Context, eventID string, now time.Time) bool {
	raw, err := p.store.Get(ctx, store.NextPollAtKey(eventID))
	if err != nil {
		return true
	}
	nextAtMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return nextAtMs <= now.UnixMilli()
}

// Plan 产出本周期的请求计划
// 每个块消费 1 个令牌; 第一次消费失败即全局硬停, 返回已产出的计划
func (p *RequestPlanner) Plan(ctx context.Context, events []*models.EventSummary, now time.Time) []ScheduledPoll {
	due := make([]*models.EventSummary, 0, len(events))
	for _, ev := range events {
		if p.isDue(ctx, ev.EventID, now) {
			due = append(due, ev)
		}
	}

	var plans []ScheduledPoll
	for _, segment := range BuildSegments(due, now) {
		for start := 0; start < len(segment.EventIDs); start += p.maxEventsPerRequest {
			end := start + p.maxEventsPerRequest
			if end > len(segment.EventIDs) {
				end = len(segment.EventIDs)
			}
			chunk := segment.EventIDs[start:end]

			if !p.bucket.Consume(1, now) {
				// 预算耗尽是正常终止, 不是错误
				return plans
			}

			plans = append(plans, ScheduledPoll{Lifecycle: segment.Lifecycle, EventIDs: chunk})

			for _, eventID := range chunk {
				delay := NextDelay(segment.Lifecycle, p.seed())
				nextAt := now.Add(delay).UnixMilli()
				key := store.NextPollAtKey(eventID)
				if err := p.store.Set(ctx, key, strconv.FormatInt(nextAt, 10), 2*delay); err != nil {
					logger.Errorf("[Planner] Failed to record next poll time for %s: %v", eventID, err)
				}
			}
		}
	}
	return plans
}
