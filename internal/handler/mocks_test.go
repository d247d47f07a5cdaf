package handler

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/service"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/internal/webhook"
)

// MockNotificationService は service.NotificationService の mock
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SendMessage(ctx context.Context, to string, msg model.Message, opts service.SendOptions) service.SendResult {
	args := m.Called(ctx, to, msg, opts)
	return args.Get(0).(service.SendResult)
}

func (m *MockNotificationService) SendBatchMessage(ctx context.Context, to []string, msg model.Message, opts service.BatchOptions) (service.BatchResult, error) {
	args := m.Called(ctx, to, msg, opts)
	return args.Get(0).(service.BatchResult), args.Error(1)
}

func (m *MockNotificationService) SendTemplateMessage(ctx context.Context, to, name string, data template.Data, opts service.SendOptions) service.SendResult {
	args := m.Called(ctx, to, name, data, opts)
	return args.Get(0).(service.SendResult)
}

func (m *MockNotificationService) BroadcastMessage(ctx context.Context, msg model.Message, opts service.BatchOptions) (service.BatchResult, error) {
	args := m.Called(ctx, msg, opts)
	return args.Get(0).(service.BatchResult), args.Error(1)
}

func (m *MockNotificationService) RenderTemplate(name string, data template.Data) (model.Message, error) {
	args := m.Called(name, data)
	return args.Get(0).(model.Message), args.Error(1)
}

func (m *MockNotificationService) GetStatus(ctx context.Context) service.Status {
	args := m.Called(ctx)
	return args.Get(0).(service.Status)
}

func (m *MockNotificationService) GetAvailableTemplates() []service.TemplateInfo {
	args := m.Called()
	return args.Get(0).([]service.TemplateInfo)
}

func (m *MockNotificationService) ValidateWebhookSignature(body []byte, signature string) bool {
	args := m.Called(body, signature)
	return args.Bool(0)
}

func (m *MockNotificationService) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockEventService は service.EventService の mock
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Handle(ctx context.Context, ev webhook.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// recordingSubmitter は受け取ったジョブを保存し、Run で実行する
type recordingSubmitter struct {
	mu    sync.Mutex
	names []string
	jobs  []webhook.Job
	err   error
}

func (s *recordingSubmitter) Submit(name string, job webhook.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.names = append(s.names, name)
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *recordingSubmitter) Run(ctx context.Context) []error {
	s.mu.Lock()
	jobs := append([]webhook.Job(nil), s.jobs...)
	s.mu.Unlock()

	errs := make([]error, len(jobs))
	for i, job := range jobs {
		errs[i] = job(ctx)
	}
	return errs
}

// memoryDeduper は処理済みのイベントIDをメモリに持つ
// delay を設定すると Seen が遅いRedisのように振る舞う
type memoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]bool
	err     error
	delay   time.Duration
	calls   int
	forgets []string
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: map[string]bool{}}
}

func (d *memoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return true, nil
	}
	d.seen[id] = true
	return false, nil
}

func (d *memoryDeduper) seenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *memoryDeduper) Forget(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	d.forgets = append(d.forgets, id)
	return nil
}
