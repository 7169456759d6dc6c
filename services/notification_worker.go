package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"odds-alert-service/logger"
	"odds-alert-service/models"
	"odds-alert-service/notify"
	"odds-alert-service/repository"
	"odds-alert-service/store"
)

const notificationConsumerGroup = "notification_workers"

const (
	defaultMaxAttempts = 3
	defaultDedupeTTL   = 7 * 24 * time.Hour
)

// NotificationWorker 消费通知任务流, 按渠道发送并记录投递审计
type NotificationWorker struct {
	store       store.Store
	repo        repository.NotificationRepository
	sender      notify.Sender
	dedupe      store.KeyValueStore // 可为 nil, 此时关闭去重优化
	consumer    string
	maxAttempts int
	dedupeTTL   time.Duration
	stopChan    chan struct{}
}

// NewNotificationWorker 创建通知工作器
func NewNotificationWorker(st store.Store, repo repository.NotificationRepository, sender notify.Sender, dedupe store.KeyValueStore, consumer string) *NotificationWorker {
	return &NotificationWorker{
		store:       st,
		repo:        repo,
		sender:      sender,
		dedupe:      dedupe,
		consumer:    consumer,
		maxAttempts: defaultMaxAttempts,
		dedupeTTL:   defaultDedupeTTL,
		stopChan:    make(chan struct{}),
	}
}

// SetMaxAttempts 设置单渠道最大尝试次数
func (w *NotificationWorker) SetMaxAttempts(attempts int) {
	if attempts > 0 {
		w.maxAttempts = attempts
	}
}

// SetDedupeTTL 设置去重键的保留时长
func (w *NotificationWorker) SetDedupeTTL(ttl time.Duration) {
	if ttl > 0 {
		w.dedupeTTL = ttl
	}
}

// Run 持续消费任务流直到 Stop
func (w *NotificationWorker) Run(ctx context.Context) {
	logger.Printf("[NotificationWorker] Starting (consumer: %s)...", w.consumer)

	if err := w.store.EnsureGroup(ctx, store.StreamNotificationJobs, notificationConsumerGroup); err != nil {
		logger.Errorf("[NotificationWorker] Failed to create consumer group: %v", err)
		return
	}

	for {
		select {
		case <-w.stopChan:
			logger.Println("[NotificationWorker] Stopped")
			return
		default:
		}

		entries, err := w.store.ReadGroup(ctx, store.StreamNotificationJobs, notificationConsumerGroup, w.consumer, 16, 5*time.Second)
		if err != nil {
			logger.Errorf("[NotificationWorker] Read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, entry := range entries {
			if err := w.handleEntry(ctx, entry); err != nil {
				logger.Errorf("[NotificationWorker] Failed to process entry %s: %v", entry.ID, err)
				w.deadLetter(ctx, entry, err)
			}
			if err := w.store.Ack(ctx, store.StreamNotificationJobs, notificationConsumerGroup, entry.ID); err != nil {
				logger.Errorf("[NotificationWorker] Ack failed for %s: %v", entry.ID, err)
			}
		}
	}
}

// Stop 停止消费
func (w *NotificationWorker) Stop() {
	close(w.stopChan)
}

func (w *NotificationWorker) deadLetter(ctx context.Context, entry store.StreamEntry, cause error) {
	values := make(map[string]string, len(entry.Values)+2)
	for k, v := range entry.Values {
		values[k] = v
	}
	values["source_entry_id"] = entry.ID
	values["error"] = cause.Error()
	if _, err := w.store.XAdd(ctx, store.StreamNotificationDeadLetter, values, 0); err != nil {
		logger.Errorf("[NotificationWorker] Dead letter append failed: %v", err)
	}
}

func (w *NotificationWorker) handleEntry(ctx context.Context, entry store.StreamEntry) error {
	var job models.NotificationJob
	if err := json.Unmarshal([]byte(entry.Values["job"]), &job); err != nil {
		return fmt.Errorf("failed to decode job: %w", err)
	}
	return w.ProcessJob(ctx, &job)
}

// alreadySent 去重键存在即已投递; 查询失败按未发送处理, 正确性由上游触发键保证
func (w *NotificationWorker) alreadySent(ctx context.Context, key string) bool {
	if w.dedupe == nil {
		return false
	}
	_, err := w.dedupe.Get(ctx, key)
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Errorf("[NotificationWorker] Dedupe lookup failed for %s: %v", key, err)
	}
	return false
}

// ProcessJob 按顺序处理每个渠道; 单渠道耗尽重试不影响其余渠道
// 尝试编号跨渠道单调递增, 投递记录只追加
func (w *NotificationWorker) ProcessJob(ctx context.Context, job *models.NotificationJob) error {
	attempt := 0

	for _, channel := range job.Channels {
		dedupeKey := store.NotifySentKey(job.AlertFiringID, channel)
		if w.alreadySent(ctx, dedupeKey) {
			logger.Printf("[NotificationWorker] Skipping %s for firing %s (already sent)", channel, job.AlertFiringID)
			continue
		}

		destination, err := w.repo.ResolveDestination(ctx, job.UserID, channel)
		if err != nil {
			logger.Errorf("[NotificationWorker] No destination for user %s channel %s: %v", job.UserID, channel, err)
			continue
		}

		for try := 1; try <= w.maxAttempts; try++ {
			attempt++

			messageID, sendErr := w.sender.Send(ctx, channel, destination, job)
			if sendErr == nil {
				w.record(ctx, &models.NotificationDelivery{
					AlertFiringID:     job.AlertFiringID,
					Channel:           channel,
					Destination:       destination,
					Status:            models.DeliveryStatusSent,
					AttemptNumber:     attempt,
					ProviderMessageID: messageID,
					CreatedAt:         time.Now(),
				})
				if w.dedupe != nil {
					if err := w.dedupe.Set(ctx, dedupeKey, time.Now().UTC().Format(time.RFC3339), w.dedupeTTL); err != nil {
						logger.Errorf("[NotificationWorker] Failed to set dedupe key %s: %v", dedupeKey, err)
					}
				}
				break
			}

			status := models.DeliveryStatusPending
			if try == w.maxAttempts {
				status = models.DeliveryStatusFailed
				logger.Errorf("[NotificationWorker] Channel %s exhausted for firing %s: %v", channel, job.AlertFiringID, sendErr)
			}
			w.record(ctx, &models.NotificationDelivery{
				AlertFiringID: job.AlertFiringID,
				Channel:       channel,
				Destination:   destination,
				Status:        status,
				AttemptNumber: attempt,
				ErrorText:     sendErr.Error(),
				CreatedAt:     time.Now(),
			})
		}
	}
	return nil
}

func (w *NotificationWorker) record(ctx context.Context, delivery *models.NotificationDelivery) {
	if err := w.repo.RecordDelivery(ctx, delivery); err != nil {
		logger.Errorf("[NotificationWorker] Failed to record delivery: %v", err)
	}
}
