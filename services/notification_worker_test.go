package services

import (
	"context"
	"testing"
	"time"

	"odds-alert-service/models"
	"odds-alert-service/notify"
	"odds-alert-service/repository"
	"odds-alert-service/store"
)

func notificationFixture() (*NotificationWorker, *store.MemoryStore, *repository.MemoryRepository, *notify.RecordingSender) {
	st := store.NewMemoryStore()
	repo := repository.NewMemoryRepository()
	sender := notify.NewRecordingSender()
	worker := NewNotificationWorker(st, repo, sender, st, "test-consumer")
	return worker, st, repo, sender
}

func sampleJob(channels ...string) *models.NotificationJob {
	return &models.NotificationJob{
		AlertFiringID: "f1",
		AlertID:       "a1",
		UserID:        "u1",
		Channels:      channels,
		EventID:       "ev1",
		OddID:         "ml_home",
		BookmakerID:   "book1",
		CurrentOdds:   150,
		TargetValue:   150,
		Direction:     models.DirectionAtOrAbove,
		ObservedAt:    time.Now(),
	}
}

func TestProcessJobSkipsDedupedChannel(t *testing.T) {
	ctx := context.Background()
	worker, st, repo, sender := notificationFixture()

	repo.SetDestination("u1", "push", "users/u1/alerts")
	repo.SetDestination("u1", "webhook", "https://example.com/hook")

	// push 渠道已投递过
	st.Set(ctx, store.NotifySentKey("f1", "push"), "2026-08-29T00:00:00Z", 0)

	if err := worker.ProcessJob(ctx, sampleJob("push", "webhook")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly 1 send, got %d", len(sent))
	}
	if sent[0].Channel != "webhook" {
		t.Errorf("Expected only webhook channel to be sent, got %s", sent[0].Channel)
	}

	// 跳过的渠道不产生任何投递记录
	for _, d := range repo.Deliveries() {
		if d.Channel == "push" {
			t.Errorf("Expected no delivery record for deduped channel, got %+v", d)
		}
	}
}

func TestProcessJobRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	worker, _, repo, sender := notificationFixture()
	worker.SetMaxAttempts(2)

	repo.SetDestination("u1", "push", "users/u1/alerts")
	sender.FailNext(1)

	if err := worker.ProcessJob(ctx, sampleJob("push")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	deliveries := repo.Deliveries()
	if len(deliveries) != 2 {
		t.Fatalf("Expected 2 delivery records, got %d", len(deliveries))
	}

	if deliveries[0].Status != models.DeliveryStatusPending || deliveries[0].AttemptNumber != 1 {
		t.Errorf("Expected first record pending attempt 1, got %+v", deliveries[0])
	}
	if deliveries[1].Status != models.DeliveryStatusSent || deliveries[1].AttemptNumber != 2 {
		t.Errorf("Expected second record sent attempt 2, got %+v", deliveries[1])
	}
	if deliveries[1].ProviderMessageID == "" {
		t.Error("Expected provider message id on successful delivery")
	}
}

func TestProcessJobExhaustionDoesNotBlockOtherChannels(t *testing.T) {
	ctx := context.Background()
	worker, _, repo, sender := notificationFixture()
	worker.SetMaxAttempts(2)

	repo.SetDestination("u1", "push", "users/u1/alerts")
	repo.SetDestination("u1", "webhook", "https://example.com/hook")
	sender.FailNext(2) // push 渠道两次都失败

	if err := worker.ProcessJob(ctx, sampleJob("push", "webhook")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	deliveries := repo.Deliveries()
	if len(deliveries) != 3 {
		t.Fatalf("Expected 3 delivery records, got %d", len(deliveries))
	}

	if deliveries[1].Status != models.DeliveryStatusFailed {
		t.Errorf("Expected final push attempt to be failed, got %s", deliveries[1].Status)
	}

	// 尝试编号跨渠道递增
	if deliveries[2].Channel != "webhook" || deliveries[2].AttemptNumber != 3 {
		t.Errorf("Expected webhook delivery with attempt 3, got %+v", deliveries[2])
	}
	if deliveries[2].Status != models.DeliveryStatusSent {
		t.Errorf("Expected webhook delivery sent, got %s", deliveries[2].Status)
	}
}

func TestProcessJobSetsDedupeKeyOnSuccess(t *testing.T) {
	ctx := context.Background()
	worker, st, repo, _ := notificationFixture()

	repo.SetDestination("u1", "push", "users/u1/alerts")

	if err := worker.ProcessJob(ctx, sampleJob("push")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := st.Get(ctx, store.NotifySentKey("f1", "push")); err != nil {
		t.Errorf("Expected dedupe key to be set after successful send, got %v", err)
	}
}

func TestProcessJobMissingDestinationSkipsChannel(t *testing.T) {
	ctx := context.Background()
	worker, _, repo, sender := notificationFixture()

	repo.SetDestination("u1", "webhook", "https://example.com/hook")

	// sms 没有配置地址, 只有 webhook 发出去
	if err := worker.ProcessJob(ctx, sampleJob("sms", "webhook")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 || sent[0].Channel != "webhook" {
		t.Errorf("Expected only webhook send, got %+v", sent)
	}
}

func TestProcessJobWithoutDedupeStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	repo := repository.NewMemoryRepository()
	sender := notify.NewRecordingSender()
	worker := NewNotificationWorker(st, repo, sender, nil, "test-consumer")

	repo.SetDestination("u1", "push", "users/u1/alerts")

	// 没有去重存储时每次都发送, 只是失去抑制优化
	worker.ProcessJob(ctx, sampleJob("push"))
	worker.ProcessJob(ctx, sampleJob("push"))

	if len(sender.Sent()) != 2 {
		t.Errorf("Expected 2 sends without dedupe store, got %d", len(sender.Sent()))
	}
}
