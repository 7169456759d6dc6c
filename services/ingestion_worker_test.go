package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"odds-alert-service/config"
	"odds-alert-service/models"
	"odds-alert-service/oddsfeed"
	"odds-alert-service/store"
)

// fakeVendor 按参数区分发现调用 (无 EventIDs) 和块拉取调用
type fakeVendor struct {
	mu        sync.Mutex
	events    []oddsfeed.Event
	calls     []oddsfeed.GetEventsParams
	failPolls bool
	requests  int64
	lastAt    time.Time
}

func (v *fakeVendor) GetEvents(ctx context.Context, params oddsfeed.GetEventsParams) (*oddsfeed.GetEventsResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, params)
	v.requests++
	v.lastAt = time.Now()

	if len(params.EventIDs) == 0 {
		return &oddsfeed.GetEventsResponse{Data: v.events}, nil
	}
	if v.failPolls {
		return nil, errors.New("vendor unavailable")
	}

	var matched []oddsfeed.Event
	for _, ev := range v.events {
		for _, id := range params.EventIDs {
			if ev.ID == id {
				matched = append(matched, ev)
			}
		}
	}
	return &oddsfeed.GetEventsResponse{Data: matched}, nil
}

func (v *fakeVendor) Usage() (int64, time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.requests, v.lastAt
}

func (v *fakeVendor) pollCalls() []oddsfeed.GetEventsParams {
	v.mu.Lock()
	defer v.mu.Unlock()
	var polls []oddsfeed.GetEventsParams
	for _, call := range v.calls {
		if len(call.EventIDs) > 0 {
			polls = append(polls, call)
		}
	}
	return polls
}

type recordingPublisher struct {
	mu     sync.Mutex
	odds   []*models.OddsTick
	status []*models.EventStatusTick
}

func (p *recordingPublisher) PublishOddsTick(tick *models.OddsTick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.odds = append(p.odds, tick)
}

func (p *recordingPublisher) PublishStatusTick(tick *models.EventStatusTick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = append(p.status, tick)
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.odds), len(p.status)
}

func ingestionTestConfig() *config.Config {
	return &config.Config{
		LeagueIDs:                []string{"nba"},
		Bookmakers:               []string{"book1"},
		MaxEventsPerRequest:      10,
		TickIntervalSeconds:      15,
		DiscoveryIntervalSeconds: 300,
	}
}

func newTestWorker(t *testing.T, vendor *fakeVendor, pub TickPublisher) (*IngestionWorker, *store.MemoryStore, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	sink := NewIngestionSink(st, 0)
	bucket := NewTokenBucket(10, 1, now)
	planner := NewRequestPlanner(st, bucket, 10)
	planner.SetSeed(func() float64 { return 0.5 })

	worker := NewIngestionWorker(ingestionTestConfig(), vendor, st, sink, planner, []TickPublisher{pub})
	worker.SetClock(func() time.Time { return now })
	return worker, st, now
}

func liveAndUpcomingEvents(now time.Time) []oddsfeed.Event {
	upcoming := now.Add(1 * time.Hour)
	return []oddsfeed.Event{
		{
			ID:       "ev_live",
			LeagueID: "nba",
			SportID:  "basketball",
			StartsAt: now.Add(-30 * time.Minute).Format(time.RFC3339),
			Status:   oddsfeed.EventStatus{Started: true, Live: true, Period: "Q2"},
			Odds: map[string]map[string]oddsfeed.BookOdds{
				"moneyline_home": {
					"book1": {Price: "-110", Available: true, UpdatedAt: now.Format(time.RFC3339)},
				},
			},
		},
		{
			ID:       "ev_upcoming",
			LeagueID: "nba",
			SportID:  "basketball",
			StartsAt: upcoming.Format(time.RFC3339),
			Status:   oddsfeed.EventStatus{},
			Odds: map[string]map[string]oddsfeed.BookOdds{
				"spread_home": {
					"book1": {Price: "+102", Spread: "-3.5", Available: true, UpdatedAt: now.Format(time.RFC3339)},
				},
			},
		},
	}
}

func TestIngestionCycleWritesAndPublishes(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	vendor := &fakeVendor{}
	worker, st, now := newTestWorker(t, vendor, pub)
	vendor.events = liveAndUpcomingEvents(now)

	if err := worker.RunCycle(ctx, now); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	oddsCount, statusCount := pub.counts()
	if statusCount != 2 {
		t.Errorf("expected 2 status ticks published, got %d", statusCount)
	}
	if oddsCount != 2 {
		t.Errorf("expected 2 odds ticks published, got %d", oddsCount)
	}

	if entries := st.StreamEntries(store.StreamOddsTicks); len(entries) != 2 {
		t.Errorf("expected 2 odds stream entries, got %d", len(entries))
	}
	if entries := st.StreamEntries(store.StreamEventStatusTicks); len(entries) != 2 {
		t.Errorf("expected 2 status stream entries, got %d", len(entries))
	}

	live, _ := st.SMembers(ctx, store.LeagueLiveIndexKey("nba"))
	if len(live) != 1 || live[0] != "ev_live" {
		t.Errorf("expected live index [ev_live], got %v", live)
	}
	upcoming, _ := st.SMembers(ctx, store.LeagueUpcomingIndexKey("nba"))
	if len(upcoming) != 1 || upcoming[0] != "ev_upcoming" {
		t.Errorf("expected upcoming index [ev_upcoming], got %v", upcoming)
	}

	for _, key := range []string{store.KeyHeartbeatIngestion, store.KeyHeartbeatDiscovery, store.KeyVendorUsage} {
		if _, err := st.Get(ctx, key); err != nil {
			t.Errorf("expected %s to be set: %v", key, err)
		}
	}

	if _, err := st.Get(ctx, store.EventMetaKey("ev_live")); err != nil {
		t.Errorf("expected event meta cached: %v", err)
	}
	if _, err := st.Get(ctx, store.EventOddsCoreKey("ev_live")); err != nil {
		t.Errorf("expected odds core cached: %v", err)
	}
}

func TestIngestionPublishesEveryObservation(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	vendor := &fakeVendor{}
	worker, st, now := newTestWorker(t, vendor, pub)
	vendor.events = liveAndUpcomingEvents(now)

	if err := worker.RunCycle(ctx, now); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// 第二个周期所有赛事都已到期, 供应商数据完全相同
	if err := worker.RunCycle(ctx, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	// 发布与流内的变更抑制无关: 每次观测都要送达订阅方
	oddsCount, statusCount := pub.counts()
	if statusCount != 4 {
		t.Errorf("expected 4 status ticks published across both cycles, got %d", statusCount)
	}
	if oddsCount != 4 {
		t.Errorf("expected 4 odds ticks published across both cycles, got %d", oddsCount)
	}

	// 流只记录变化, 第二个周期不产生新条目
	if entries := st.StreamEntries(store.StreamOddsTicks); len(entries) != 2 {
		t.Errorf("expected change suppression to keep odds stream at 2 entries, got %d", len(entries))
	}
	if entries := st.StreamEntries(store.StreamEventStatusTicks); len(entries) != 2 {
		t.Errorf("expected change suppression to keep status stream at 2 entries, got %d", len(entries))
	}
}

func TestIngestionCycleRespectsPollSchedule(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	vendor := &fakeVendor{}
	worker, _, now := newTestWorker(t, vendor, pub)
	vendor.events = liveAndUpcomingEvents(now)

	if err := worker.RunCycle(ctx, now); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	firstPolls := len(vendor.pollCalls())
	if firstPolls == 0 {
		t.Fatal("expected poll calls in first cycle")
	}

	// 15 秒后所有赛事都未到下次轮询时间
	if err := worker.RunCycle(ctx, now.Add(15*time.Second)); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if polls := len(vendor.pollCalls()); polls != firstPolls {
		t.Errorf("expected no new polls before next due time, got %d extra", polls-firstPolls)
	}
}

func TestIngestionCycleSurvivesChunkFailure(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	vendor := &fakeVendor{failPolls: true}
	worker, st, now := newTestWorker(t, vendor, pub)
	vendor.events = liveAndUpcomingEvents(now)

	if err := worker.RunCycle(ctx, now); err != nil {
		t.Fatalf("cycle should contain chunk failures, got: %v", err)
	}

	oddsCount, statusCount := pub.counts()
	if oddsCount != 0 || statusCount != 0 {
		t.Errorf("expected no ticks published on poll failure, got odds=%d status=%d", oddsCount, statusCount)
	}

	// 心跳照常写入, 块失败不等于周期失败
	if _, err := st.Get(ctx, store.KeyHeartbeatIngestion); err != nil {
		t.Errorf("expected ingestion heartbeat despite chunk failure: %v", err)
	}
}

func TestIngestionBookmakerSelection(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	vendor := &fakeVendor{}
	worker, _, now := newTestWorker(t, vendor, pub)
	worker.config.LiveBookmakers = []string{"book_live"}
	worker.config.ColdBookmakers = []string{"book_cold"}
	vendor.events = liveAndUpcomingEvents(now)

	if err := worker.RunCycle(ctx, now); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	for _, call := range vendor.pollCalls() {
		want := "book_cold"
		for _, id := range call.EventIDs {
			if id == "ev_live" {
				want = "book_live"
			}
		}
		if len(call.BookmakerIDs) != 1 || call.BookmakerIDs[0] != want {
			t.Errorf("expected bookmakers [%s] for events %v, got %v", want, call.EventIDs, call.BookmakerIDs)
		}
	}
}
