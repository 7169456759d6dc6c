package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"odds-alert-service/config"
	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/oddsfeed"
	"odds-alert-service/store"
)

// 发现分页保护上限
const maxDiscoveryPages = 50

// VendorClient 赔率供应商客户端抽象
type VendorClient interface {
	GetEvents(ctx context.Context, params oddsfeed.GetEventsParams) (*oddsfeed.GetEventsResponse, error)
	Usage() (int64, time.Time)
}

// IngestionWorker 采集主循环: 发现赛事 → 规划请求 → 拉取赔率 → 写入并发布 tick
type IngestionWorker struct {
	config     *config.Config
	vendor     VendorClient
	store      store.Store
	sink       *IngestionSink
	planner    *RequestPlanner
	publishers []TickPublisher

	stopChan chan struct{}
	now      func() time.Time

	mu            sync.Mutex
	discovered    []*models.EventSummary
	lastDiscovery time.Time
}

// NewIngestionWorker 创建采集 worker
func NewIngestionWorker(cfg *config.Config, vendor VendorClient, st store.Store, sink *IngestionSink, planner *RequestPlanner, publishers []TickPublisher) *IngestionWorker {
	return &IngestionWorker{
		config:     cfg,
		vendor:     vendor,
		store:      st,
		sink:       sink,
		planner:    planner,
		publishers: publishers,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// SetClock 固定时钟, 仅测试使用
func (w *IngestionWorker) SetClock(now func() time.Time) {
	w.now = now
}

// Run 启动采集循环, 阻塞直到 Stop
func (w *IngestionWorker) Run() {
	logger.Info.Printf("[Ingestion] 📡 采集循环启动, 周期 %ds, 发现间隔 %ds",
		w.config.TickIntervalSeconds, w.config.DiscoveryIntervalSeconds)

	ticker := time.NewTicker(time.Duration(w.config.TickIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		w.runCycleContained()

		select {
		case <-w.stopChan:
			logger.Info.Println("[Ingestion] 🔌 采集循环停止")
			return
		case <-ticker.C:
		}
	}
}

// Stop 停止采集循环
func (w *IngestionWorker) Stop() {
	close(w.stopChan)
}

// runCycleContained 单个周期的失败不能终止循环
func (w *IngestionWorker) runCycleContained() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("[Ingestion] ❌ 采集周期 panic: %v", r)
		}
	}()

	if err := w.RunCycle(context.Background(), w.now()); err != nil {
		logger.Error.Printf("[Ingestion] ❌ 采集周期失败: %v", err)
	}
}

// bookmakersFor 按生命周期选 bookmaker 列表, 未配置时回退到通用列表
func (w *IngestionWorker) bookmakersFor(lc Lifecycle) []string {
	var books []string
	if lc == LifecycleLive {
		books = w.config.LiveBookmakers
	} else {
		books = w.config.ColdBookmakers
	}
	if len(books) == 0 {
		books = w.config.Bookmakers
	}
	return books
}

// discover 全量拉取配置联赛下未终结的赛事, 结果作为轮询候选缓存
func (w *IngestionWorker) discover(ctx context.Context, now time.Time) error {
	finalized := false
	params := oddsfeed.GetEventsParams{
		LeagueIDs: w.config.LeagueIDs,
		Finalized: &finalized,
		Limit:     100,
	}

	var summaries []*models.EventSummary
	for page := 0; page < maxDiscoveryPages; page++ {
		resp, err := w.vendor.GetEvents(ctx, params)
		if err != nil {
			return err
		}

		for i := range resp.Data {
			summary := resp.Data[i].Summary()
			summaries = append(summaries, &summary)

			meta, err := json.Marshal(summary)
			if err == nil {
				if err := w.store.Set(ctx, store.EventMetaKey(summary.EventID), string(meta), 24*time.Hour); err != nil {
					logger.Error.Printf("[Ingestion] 缓存赛事元数据失败 %s: %v", summary.EventID, err)
				}
			}
		}

		if resp.NextCursor == "" {
			break
		}
		params.Cursor = resp.NextCursor
	}

	w.mu.Lock()
	w.discovered = summaries
	w.lastDiscovery = now
	w.mu.Unlock()

	if err := w.store.Set(ctx, store.KeyHeartbeatDiscovery, now.Format(time.RFC3339), 0); err != nil {
		logger.Error.Printf("[Ingestion] 写入发现心跳失败: %v", err)
	}

	logger.Info.Printf("[Ingestion] 📊 发现周期完成, 候选赛事 %d 个", len(summaries))
	return nil
}

// ensureDiscovery 发现缓存过期时刷新; 刷新失败继续用旧缓存
func (w *IngestionWorker) ensureDiscovery(ctx context.Context, now time.Time) []*models.EventSummary {
	w.mu.Lock()
	stale := w.lastDiscovery.IsZero() ||
		now.Sub(w.lastDiscovery) >= time.Duration(w.config.DiscoveryIntervalSeconds)*time.Second
	w.mu.Unlock()

	if stale {
		if err := w.discover(ctx, now); err != nil {
			logger.Error.Printf("[Ingestion] ⚠️ 发现周期失败, 沿用旧候选: %v", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.discovered
}

// RunCycle 执行一次完整采集周期
// 单个请求块失败只记录日志, 不影响其他块
func (w *IngestionWorker) RunCycle(ctx context.Context, now time.Time) error {
	events := w.ensureDiscovery(ctx, now)
	plans := w.planner.Plan(ctx, events, now)

	var wg sync.WaitGroup
	for _, plan := range plans {
		wg.Add(1)
		go func(plan ScheduledPoll) {
			defer wg.Done()
			if err := w.pollChunk(ctx, plan, now); err != nil {
				logger.Error.Printf("[Ingestion] ❌ 块拉取失败 (%s, %d 个赛事): %v",
					plan.Lifecycle, len(plan.EventIDs), err)
			}
		}(plan)
	}
	wg.Wait()

	if err := w.store.Set(ctx, store.KeyHeartbeatIngestion, now.Format(time.RFC3339), 0); err != nil {
		logger.Error.Printf("[Ingestion] 写入采集心跳失败: %v", err)
	}
	if _, lastRequestAt := w.vendor.Usage(); !lastRequestAt.IsZero() {
		if err := w.store.Set(ctx, store.KeyVendorUsage, lastRequestAt.Format(time.RFC3339), 0); err != nil {
			logger.Error.Printf("[Ingestion] 写入供应商用量失败: %v", err)
		}
	}
	return nil
}

// pollChunk 拉取一个计划块并逐赛事写入
func (w *IngestionWorker) pollChunk(ctx context.Context, plan ScheduledPoll, now time.Time) error {
	resp, err := w.vendor.GetEvents(ctx, oddsfeed.GetEventsParams{
		EventIDs:     plan.EventIDs,
		BookmakerIDs: w.bookmakersFor(plan.Lifecycle),
	})
	if err != nil {
		return err
	}

	for i := range resp.Data {
		w.processEvent(ctx, &resp.Data[i], now)
	}
	return nil
}

// processEvent 写入单个赛事的状态与全部市场快照
// 每个解析成功的 tick 都发布给全部订阅方, 发布与写入互不阻塞:
// 流内的变更抑制只属于 sink, 写入失败也不影响发布
func (w *IngestionWorker) processEvent(ctx context.Context, event *oddsfeed.Event, now time.Time) {
	statusTick := event.StatusTick(now)

	for _, pub := range w.publishers {
		pub.PublishStatusTick(statusTick)
	}
	if _, err := w.sink.WriteEventStatus(ctx, statusTick); err != nil {
		logger.Error.Printf("[Ingestion] 写入赛事状态失败 %s: %v", event.ID, err)
	}

	w.updateLeagueIndexes(ctx, statusTick)

	core := make(map[string]map[string]string)
	for oddID, books := range event.Odds {
		for bookmakerID, quote := range books {
			tick := BuildOddsTick(OddsQuoteSnapshot{
				EventID:         event.ID,
				OddID:           oddID,
				BookmakerID:     bookmakerID,
				Price:           quote.Price,
				Spread:          quote.Spread,
				OverUnder:       quote.OverUnder,
				Available:       quote.Available,
				VendorUpdatedAt: quote.VendorUpdatedAt(),
				ObservedAt:      now,
			})
			if tick == nil {
				continue
			}

			for _, pub := range w.publishers {
				pub.PublishOddsTick(tick)
			}
			if err := w.sink.WriteOddsTick(ctx, statusTick, tick); err != nil {
				logger.Error.Printf("[Ingestion] 写入赔率失败 %s/%s/%s: %v", event.ID, oddID, bookmakerID, err)
			}

			if quote.Available {
				if core[oddID] == nil {
					core[oddID] = make(map[string]string)
				}
				core[oddID][bookmakerID] = quote.Price
			}
		}
	}

	if len(core) > 0 {
		if raw, err := json.Marshal(core); err == nil {
			ttl := quoteTTL(statusTick, now)
			if err := w.store.Set(ctx, store.EventOddsCoreKey(event.ID), string(raw), ttl); err != nil {
				logger.Error.Printf("[Ingestion] 写入核心赔率失败 %s: %v", event.ID, err)
			}
		}
	}
}

// updateLeagueIndexes 按赛事状态维护联赛索引集合
func (w *IngestionWorker) updateLeagueIndexes(ctx context.Context, status *models.EventStatusTick) {
	if status.LeagueID == "" {
		return
	}
	liveKey := store.LeagueLiveIndexKey(status.LeagueID)
	upcomingKey := store.LeagueUpcomingIndexKey(status.LeagueID)

	switch {
	case status.Ended || status.Finalized || status.Cancelled:
		w.store.SRem(ctx, liveKey, status.EventID)
		w.store.SRem(ctx, upcomingKey, status.EventID)
	case status.Live || status.Started:
		w.store.SAdd(ctx, liveKey, status.EventID)
		w.store.SRem(ctx, upcomingKey, status.EventID)
	default:
		w.store.SAdd(ctx, upcomingKey, status.EventID)
		w.store.SRem(ctx, liveKey, status.EventID)
	}
}
