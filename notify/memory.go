package notify

import (
	"context"
	"fmt"
	"sync"

	"odds-alert-service/models"
)

// SentRecord 一次发送调用的记录
type SentRecord struct {
	Channel     string
	Destination string
	Job         *models.NotificationJob
}

// RecordingSender 测试用发送器, 记录调用并按脚本失败
type RecordingSender struct {
	mu        sync.Mutex
	sent      []SentRecord
	failNext  int // 先失败这么多次, 之后成功
	callCount int
}

// NewRecordingSender 创建记录发送器
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// FailNext 让接下来 n 次发送失败
func (s *RecordingSender) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Sent 返回成功发送的记录
func (s *RecordingSender) Sent() []SentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentRecord(nil), s.sent...)
}

// CallCount 返回发送调用总数, 含失败
func (s *RecordingSender) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *RecordingSender) Send(ctx context.Context, channel, destination string, job *models.NotificationJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if s.failNext > 0 {
		s.failNext--
		return "", fmt.Errorf("simulated send failure")
	}

	s.sent = append(s.sent, SentRecord{Channel: channel, Destination: destination, Job: job})
	return fmt.Sprintf("msg-%d", s.callCount), nil
}
