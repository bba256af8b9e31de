package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/jobs"
)

type outboxStub struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (o *outboxStub) Insert(ctx context.Context, n *models.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.items = append(o.items, *n)
	return nil
}

func (o *outboxStub) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

type notifyMetricsStub struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (m *notifyMetricsStub) ObserveNotification(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

func TestNotificationServiceQueuesToOutbox(t *testing.T) {
	outbox := &outboxStub{}
	metrics := &notifyMetricsStub{}
	svc := NewNotificationService(outbox, metrics, zap.NewNop())
	queue := jobs.NewQueue("notifications", svc.Handle, jobs.QueueConfig{Workers: 1, DeadLetter: svc.DeadLetter})
	queue.Start(context.Background())
	defer queue.Stop()
	svc.UseQueue(queue)

	svc.Notify(context.Background(), models.Notification{RecipientID: "student-1", Title: "Lesson time updated"})
	svc.Notify(context.Background(), models.Notification{RecipientID: "teacher-1", Title: "Lesson time updated"})

	assert.Eventually(t, func() bool { return outbox.count() == 2 }, time.Second, 5*time.Millisecond)
	outbox.mu.Lock()
	assert.NotEmpty(t, outbox.items[0].ID)
	outbox.mu.Unlock()
}

func TestNotificationServiceSwallowsFailures(t *testing.T) {
	outbox := &outboxStub{err: errors.New("disk full")}
	metrics := &notifyMetricsStub{}
	svc := NewNotificationService(outbox, metrics, zap.NewNop())

	require.NotPanics(t, func() {
		svc.Notify(context.Background(), models.Notification{RecipientID: "student-1"})
	})
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, 0, outbox.count())
}

func TestNotificationServiceReportsQueueRejection(t *testing.T) {
	metrics := &notifyMetricsStub{}
	svc := NewNotificationService(&outboxStub{}, metrics, zap.NewNop())
	svc.UseQueue(jobs.NewQueue("idle", svc.Handle, jobs.QueueConfig{}))

	svc.Notify(context.Background(), models.Notification{RecipientID: "student-1"})
	assert.Equal(t, 1, metrics.failed)
}

func TestNotificationServiceDiscardsMalformedJobs(t *testing.T) {
	svc := NewNotificationService(&outboxStub{}, nil, zap.NewNop())
	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "bad", Payload: "not a notification"}))
}

type blockingOutbox struct {
	release chan struct{}
}

func (o *blockingOutbox) Insert(ctx context.Context, n *models.Notification) error {
	select {
	case <-o.release:
	case <-ctx.Done():
	}
	return nil
}

func TestNotificationServiceDoesNotBlockOnFullQueue(t *testing.T) {
	outbox := &blockingOutbox{release: make(chan struct{})}
	metrics := &notifyMetricsStub{}
	svc := NewNotificationService(outbox, metrics, zap.NewNop())
	queue := jobs.NewQueue("notifications", svc.Handle, jobs.QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer queue.Stop()
	defer close(outbox.release)
	svc.UseQueue(queue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			svc.Notify(context.Background(), models.Notification{RecipientID: "student-1", Title: "Lesson time updated"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled outbox")
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.GreaterOrEqual(t, metrics.failed, 1)
}
