package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 256
	DefaultHandlerTimeout = 30 * time.Second
)

var (
	// ErrQueueFull はキューに空きがないことを表す
	ErrQueueFull = errors.New("webhook dispatcher queue is full")
	// ErrDispatcherClosed は Shutdown 後の投入を表す
	ErrDispatcherClosed = errors.New("webhook dispatcher is closed")
)

// Job はバックグラウンドで実行する処理
type Job func(ctx context.Context) error

type task struct {
	name string
	job  Job
}

// Dispatcher はHTTPレスポンスの後でイベント処理を実行するワーカープール
// ジョブごとに recover とタイムアウトを適用し、エラーはログに残すだけで呼び出し元には返さない
type Dispatcher struct {
	tasks   chan task
	timeout time.Duration
	logger  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher は workers 本のワーカーを起動する
func NewDispatcher(workers, queueSize int, timeout time.Duration, log *logrus.Entry) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		tasks:   make(chan task, queueSize),
		timeout: timeout,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Go(d.work)
	}
	return d
}

// Submit はジョブをキューに積む。キューが満杯なら待たずに ErrQueueFull を返す
func (d *Dispatcher) Submit(name string, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.tasks <- task{name: name, job: job}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown は新規受付を止め、積まれたジョブが終わるまで待つ
// ctx が先に終わった場合は実行中のジョブをキャンセルして ctx のエラーを返す
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	for t := range d.tasks {
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	start := time.Now()
	log := d.logger.WithField("job", t.name)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return t.job(ctx)
	}()

	if err != nil {
		log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).Error("Webhook job failed")
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Webhook job finished")
}
