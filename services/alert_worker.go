package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/repository"
	"odds-alert-service/store"
)

const alertConsumerGroup = "alert_workers"

// AlertWorker 消费赔率 tick 流, 评估规则并产出通知任务
type AlertWorker struct {
	store    store.Store
	repo     repository.AlertRepository
	consumer string
	maxLen   int64
	stopChan chan struct{}
}

// NewAlertWorker 创建预警工作器
func NewAlertWorker(st store.Store, repo repository.AlertRepository, consumer string) *AlertWorker {
	return &AlertWorker{
		store:    st,
		repo:     repo,
		consumer: consumer,
		stopChan: make(chan struct{}),
	}
}

// Run 持续消费 tick 流直到 Stop
// 同一市场的 tick 按写入顺序被单消费者串行处理, 保证 "上一次 tick" 比较正确
func (w *AlertWorker) Run(ctx context.Context) {
	logger.Printf("[AlertWorker] Starting (consumer: %s)...", w.consumer)

	if err := w.store.EnsureGroup(ctx, store.StreamOddsTicks, alertConsumerGroup); err != nil {
		logger.Errorf("[AlertWorker] Failed to create consumer group: %v", err)
		return
	}

	for {
		select {
		case <-w.stopChan:
			logger.Println("[AlertWorker] Stopped")
			return
		default:
		}

		entries, err := w.store.ReadGroup(ctx, store.StreamOddsTicks, alertConsumerGroup, w.consumer, 64, 5*time.Second)
		if err != nil {
			logger.Errorf("[AlertWorker] Read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, entry := range entries {
			if err := w.handleEntry(ctx, entry); err != nil {
				logger.Errorf("[AlertWorker] Failed to process entry %s: %v", entry.ID, err)
				w.deadLetter(ctx, entry, err)
			}
			if err := w.store.Ack(ctx, store.StreamOddsTicks, alertConsumerGroup, entry.ID); err != nil {
				logger.Errorf("[AlertWorker] Ack failed for %s: %v", entry.ID, err)
			}
		}
	}
}

// Stop 停止消费
func (w *AlertWorker) Stop() {
	close(w.stopChan)
}

// deadLetter 把处理失败的记录移入死信流, 避免卡住消费组
func (w *AlertWorker) deadLetter(ctx context.Context, entry store.StreamEntry, cause error) {
	values := make(map[string]string, len(entry.Values)+2)
	for k, v := range entry.Values {
		values[k] = v
	}
	values["source_entry_id"] = entry.ID
	values["error"] = cause.Error()
	if _, err := w.store.XAdd(ctx, store.StreamAlertDeadLetter, values, 0); err != nil {
		logger.Errorf("[AlertWorker] Dead letter append failed: %v", err)
	}
}

func (w *AlertWorker) handleEntry(ctx context.Context, entry store.StreamEntry) error {
	tick, err := DecodeOddsTickFields(entry.Values)
	if err != nil {
		return fmt.Errorf("failed to decode tick: %w", err)
	}
	return w.ProcessTick(ctx, tick, time.Now())
}

// loadEventStatus 从缓存读取赛事状态, 缺失时返回 nil
func (w *AlertWorker) loadEventStatus(ctx context.Context, eventID string) *models.EventStatusTick {
	raw, err := w.store.Get(ctx, store.EventStatusKey(eventID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Errorf("[AlertWorker] Failed to load status for %s: %v", eventID, err)
		}
		return nil
	}
	var status models.EventStatusTick
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		logger.Errorf("[AlertWorker] Corrupt status for %s: %v", eventID, err)
		return nil
	}
	return &status
}

// ProcessTick 评估所有匹配规则; 无论触发多少条, tick 最后保存一次作为 "上一次"
func (w *AlertWorker) ProcessTick(ctx context.Context, tick *models.OddsTick, now time.Time) error {
	alerts, err := w.repo.ListMatchingAlerts(ctx, tick)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	var prev *models.OddsTick
	var status *models.EventStatusTick
	if len(alerts) > 0 {
		prev, err = w.repo.GetPreviousTick(ctx, tick)
		if err != nil {
			return fmt.Errorf("failed to get previous tick: %w", err)
		}
		status = w.loadEventStatus(ctx, tick.EventID)
	}

	for _, alert := range alerts {
		result := EvaluateAlert(alert, tick, prev, status, now)
		if !result.Fire {
			continue
		}

		firingID, err := w.repo.TryCreateFiring(ctx, repository.FiringParams{
			AlertID:     alert.ID,
			FiringKey:   result.FiringKey,
			EventID:     tick.EventID,
			OddID:       tick.OddID,
			BookmakerID: tick.BookmakerID,
			CurrentOdds: tick.CurrentOdds,
			Line:        tick.Line,
			ObservedAt:  tick.ObservedAt,
		})
		if err != nil {
			logger.Errorf("[AlertWorker] Failed to create firing for alert %s: %v", alert.ID, err)
			continue
		}
		if firingID == "" {
			// 重复 tick, 该触发已处理过
			continue
		}

		if err := w.repo.MarkAlertFired(ctx, alert.ID, tick.ObservedAt); err != nil {
			logger.Errorf("[AlertWorker] Failed to mark alert %s fired: %v", alert.ID, err)
		}

		if err := w.enqueueJob(ctx, alert, tick, prev, firingID); err != nil {
			logger.Errorf("[AlertWorker] Failed to enqueue job for firing %s: %v", firingID, err)
		}
	}

	if err := w.repo.SaveLatestTick(ctx, tick); err != nil {
		return fmt.Errorf("failed to save latest tick: %w", err)
	}
	return nil
}

func (w *AlertWorker) enqueueJob(ctx context.Context, alert *models.StoredAlert, tick, prev *models.OddsTick, firingID string) error {
	job := &models.NotificationJob{
		AlertFiringID: firingID,
		AlertID:       alert.ID,
		UserID:        alert.UserID,
		Channels:      alert.Channels,
		EventID:       tick.EventID,
		OddID:         tick.OddID,
		BookmakerID:   tick.BookmakerID,
		CurrentOdds:   tick.CurrentOdds,
		Line:          tick.Line,
		RuleType:      alert.RuleType,
		MarketType:    alert.MarketType,
		TeamSide:      alert.TeamSide,
		TargetValue:   alert.TargetValue,
		Direction:     models.DirectionForComparator(alert.EffectiveComparator()),
		ObservedAt:    tick.ObservedAt,
	}
	if prev != nil {
		odds := prev.CurrentOdds
		job.PreviousOdds = &odds
		job.PreviousLine = prev.Line
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if _, err := w.store.XAdd(ctx, store.StreamNotificationJobs, map[string]string{"job": string(raw)}, 0); err != nil {
		return fmt.Errorf("failed to append job: %w", err)
	}
	return nil
}
