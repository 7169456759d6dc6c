package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"odds-alert-service/models"
	"odds-alert-service/store"
)

func liveSummary(eventID string, now time.Time) *models.EventSummary {
	startsAt := now.Add(-time.Hour)
	return &models.EventSummary{EventID: eventID, StartsAt: &startsAt, Started: true}
}

func TestPlanChunksBySize(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := store.NewMemoryStore()
	bucket := NewTokenBucket(10, 0, now)

	planner := NewRequestPlanner(kv, bucket, 2)
	planner.SetSeed(func() float64 { return 0 })

	events := []*models.EventSummary{
		liveSummary("a", now), liveSummary("b", now), liveSummary("c", now),
	}

	plans := planner.Plan(ctx, events, now)

	if len(plans) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(plans))
	}
	if len(plans[0].EventIDs) != 2 || len(plans[1].EventIDs) != 1 {
		t.Errorf("Expected chunk sizes [2,1], got [%d,%d]", len(plans[0].EventIDs), len(plans[1].EventIDs))
	}
}

func TestPlanStopsWhenBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := store.NewMemoryStore()
	bucket := NewTokenBucket(2, 0, now)

	planner := NewRequestPlanner(kv, bucket, 1)
	planner.SetSeed(func() float64 { return 0 })

	events := []*models.EventSummary{
		liveSummary("a", now), liveSummary("b", now), liveSummary("c", now), liveSummary("d", now),
	}

	plans := planner.Plan(ctx, events, now)

	if len(plans) != 2 {
		t.Fatalf("Expected planning to stop after 2 chunks, got %d", len(plans))
	}

	// 预算停止后, 未计划的赛事不应有轮询时间记录
	if _, err := kv.Get(ctx, store.NextPollAtKey("c")); err != store.ErrNotFound {
		t.Errorf("Expected no next-poll record for unplanned event, got %v", err)
	}
}

func TestPlanFiltersFutureDueTimes(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := store.NewMemoryStore()
	bucket := NewTokenBucket(10, 0, now)

	planner := NewRequestPlanner(kv, bucket, 10)
	planner.SetSeed(func() float64 { return 0 })

	// "future" 的下次轮询时间在未来, "past" 的在过去, "unknown" 没有记录
	future := strconv.FormatInt(now.Add(time.Minute).UnixMilli(), 10)
	past := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	kv.Set(ctx, store.NextPollAtKey("future"), future, 0)
	kv.Set(ctx, store.NextPollAtKey("past"), past, 0)

	events := []*models.EventSummary{
		liveSummary("future", now), liveSummary("past", now), liveSummary("unknown", now),
	}

	plans := planner.Plan(ctx, events, now)

	if len(plans) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(plans))
	}
	if len(plans[0].EventIDs) != 2 {
		t.Fatalf("Expected 2 due events, got %v", plans[0].EventIDs)
	}
	for _, id := range plans[0].EventIDs {
		if id == "future" {
			t.Error("Expected event with future due time to be excluded")
		}
	}
}

func TestPlanAssignsJitteredNextPollTime(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	kv := store.NewMemoryStore()
	bucket := NewTokenBucket(10, 0, now)

	planner := NewRequestPlanner(kv, bucket, 10)
	planner.SetSeed(func() float64 { return 0.5 })

	planner.Plan(ctx, []*models.EventSummary{liveSummary("a", now)}, now)

	raw, err := kv.Get(ctx, store.NextPollAtKey("a"))
	if err != nil {
		t.Fatalf("Expected next poll record, got %v", err)
	}
	nextAtMs, _ := strconv.ParseInt(raw, 10, 64)

	// live 节奏 [30,60], seed 0.5 → 45s
	expected := now.Add(45 * time.Second).UnixMilli()
	if nextAtMs != expected {
		t.Errorf("Expected next poll at %d, got %d", expected, nextAtMs)
	}
}
