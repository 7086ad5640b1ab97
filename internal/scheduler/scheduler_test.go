package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeClient struct {
	mu     sync.Mutex
	tasks  []*asynq.Task
	opts   [][]asynq.Option
	err    error
	closed bool
}

func (c *fakeClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	c.opts = append(c.opts, opts)
	return &asynq.TaskInfo{ID: "task"}, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

type fakeInspector struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (i *fakeInspector) DeleteTask(queue, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted = append(i.deleted, queue+"/"+id)
	return i.err
}

func (i *fakeInspector) Close() error { return nil }

type fakeExpirer struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (e *fakeExpirer) ExpireAccess(ctx context.Context, accessID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, accessID)
	return e.err
}

func optionTypes(opts []asynq.Option) map[asynq.OptionType]interface{} {
	out := map[asynq.OptionType]interface{}{}
	for _, o := range opts {
		out[o.Type()] = o.Value()
	}
	return out
}

var _ = Describe("Scheduler", func() {
	var (
		client    *fakeClient
		inspector *fakeInspector
		sched     *Scheduler
		log       *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		client = &fakeClient{}
		inspector = &fakeInspector{}
		sched = newScheduler(client, inspector, "access", log)
	})

	Describe("ScheduleAccessExpiry", func() {
		It("enqueues one task per access at its expiry date", func() {
			at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			Expect(sched.ScheduleAccessExpiry(context.Background(), 42, at)).To(Succeed())

			Expect(client.tasks).To(HaveLen(1))
			Expect(client.tasks[0].Type()).To(Equal(TypeAccessExpire))
			Expect(string(client.tasks[0].Payload())).To(MatchJSON(`{"access_id":42}`))

			opts := optionTypes(client.opts[0])
			Expect(opts[asynq.TaskIDOpt]).To(Equal("user_access:42:expire"))
			Expect(opts[asynq.QueueOpt]).To(Equal("access"))
			Expect(opts[asynq.ProcessAtOpt]).To(Equal(at))
		})

		It("treats an already armed access as scheduled", func() {
			client.err = asynq.ErrTaskIDConflict
			Expect(sched.ScheduleAccessExpiry(context.Background(), 42, time.Now())).To(Succeed())
		})

		It("reports enqueue failures", func() {
			client.err = errors.New("redis down")
			Expect(sched.ScheduleAccessExpiry(context.Background(), 42, time.Now())).To(MatchError(ContainSubstring("redis down")))
		})
	})

	Describe("CancelAccessExpiry", func() {
		It("deletes the task by its derived id", func() {
			Expect(sched.CancelAccessExpiry(context.Background(), 7)).To(Succeed())
			Expect(inspector.deleted).To(ConsistOf("access/user_access:7:expire"))
		})

		It("ignores tasks that already ran", func() {
			inspector.err = asynq.ErrTaskNotFound
			Expect(sched.CancelAccessExpiry(context.Background(), 7)).To(Succeed())
		})

		It("reports other inspector failures", func() {
			inspector.err = errors.New("redis down")
			Expect(sched.CancelAccessExpiry(context.Background(), 7)).To(HaveOccurred())
		})
	})

	It("falls back to the default queue", func() {
		s := newScheduler(client, inspector, "", log)
		Expect(s.CancelAccessExpiry(context.Background(), 1)).To(Succeed())
		Expect(inspector.deleted).To(ConsistOf("default/user_access:1:expire"))
	})

	Describe("HandleAccessExpiry", func() {
		var (
			expirer  *fakeExpirer
			handlers *Handlers
		)

		BeforeEach(func() {
			expirer = &fakeExpirer{}
			handlers = NewHandlers(expirer, log)
		})

		It("expires the access named in the payload", func() {
			task, err := NewAccessExpiryTask(42)
			Expect(err).NotTo(HaveOccurred())
			Expect(handlers.HandleAccessExpiry(context.Background(), task)).To(Succeed())
			Expect(expirer.ids).To(Equal([]int64{42}))
		})

		It("skips retries on a malformed payload", func() {
			task := asynq.NewTask(TypeAccessExpire, []byte(`{`))
			err := handlers.HandleAccessExpiry(context.Background(), task)
			Expect(errors.Is(err, asynq.SkipRetry)).To(BeTrue())
			Expect(expirer.ids).To(BeEmpty())
		})

		It("skips retries on a missing access id", func() {
			task := asynq.NewTask(TypeAccessExpire, []byte(`{}`))
			Expect(errors.Is(handlers.HandleAccessExpiry(context.Background(), task), asynq.SkipRetry)).To(BeTrue())
		})

		It("returns expirer failures so the task is retried", func() {
			expirer.err = errors.New("db down")
			task, _ := NewAccessExpiryTask(42)
			err := handlers.HandleAccessExpiry(context.Background(), task)
			Expect(err).To(MatchError("db down"))
			Expect(errors.Is(err, asynq.SkipRetry)).To(BeFalse())
		})

		It("routes the task type through the mux", func() {
			task, _ := NewAccessExpiryTask(3)
			Expect(handlers.Mux().ProcessTask(context.Background(), task)).To(Succeed())
			Expect(expirer.ids).To(Equal([]int64{3}))
		})
	})
})
