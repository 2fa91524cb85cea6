package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"thetamind/internal/logger"
)

// Handler 执行某一类任务，返回结果 JSON。
type Handler func(ctx context.Context, payloadJSON string) (string, error)

// Runner 维护一个有界工作池，执行已注册类型的任务。
type Runner struct {
	store   *Store
	workers int

	mu       sync.RWMutex
	handlers map[string]Handler
	queue    chan string
}

func NewRunner(store *Store, workers int) *Runner {
	if workers <= 0 {
		workers = 2
	}
	return &Runner{
		store:    store,
		workers:  workers,
		handlers: make(map[string]Handler),
		queue:    make(chan string, 64),
	}
}

// Register 注册任务类型的处理函数。
func (r *Runner) Register(kind string, h Handler) {
	r.mu.Lock()
	r.handlers[kind] = h
	r.mu.Unlock()
}

// Submit 创建任务并入队，返回可立即轮询的任务快照。
func (r *Runner) Submit(ctx context.Context, kind string, payload any) (Task, error) {
	r.mu.RLock()
	_, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("未注册的任务类型: %s", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("序列化任务参数失败: %w", err)
	}
	t := Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      StatusPending,
		PayloadJSON: string(raw),
	}
	if err := r.store.Create(ctx, t); err != nil {
		return Task{}, err
	}
	select {
	case r.queue <- t.ID:
	default:
		_ = r.store.Fail(ctx, t.ID, "任务队列已满")
		return Task{}, fmt.Errorf("任务队列已满，稍后重试")
	}
	return t, nil
}

// Run 启动工作池并阻塞到 ctx 取消。启动时先把库里残留的
// pending 任务重新入队，避免重启后任务永远停在 pending。
func (r *Runner) Run(ctx context.Context) error {
	r.requeuePending(ctx)
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-r.queue:
					r.execute(ctx, id)
				}
			}
		})
	}
	return group.Wait()
}

func (r *Runner) requeuePending(ctx context.Context) {
	ids, err := r.store.ListPendingIDs(ctx)
	if err != nil {
		logger.Errorf("恢复 pending 任务失败: %v", err)
		return
	}
	requeued := 0
	for _, id := range ids {
		select {
		case r.queue <- id:
			requeued++
		default:
			logger.Warnf("任务队列已满，剩余 %d 个 pending 任务等待下次启动恢复", len(ids)-requeued)
			return
		}
	}
	if requeued > 0 {
		logger.Infof("已恢复 %d 个 pending 任务", requeued)
	}
}

func (r *Runner) execute(ctx context.Context, id string) {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		logger.Errorf("读取任务 %s 失败: %v", id, err)
		return
	}
	// 恢复入队可能与正常入队重复，非 pending 的任务直接跳过
	if t.Status != StatusPending {
		return
	}
	r.mu.RLock()
	handler := r.handlers[t.Kind]
	r.mu.RUnlock()
	if handler == nil {
		_ = r.store.Fail(ctx, id, "未注册的任务类型")
		return
	}
	if err := r.store.MarkRunning(ctx, id); err != nil {
		logger.Errorf("标记任务 %s 运行中失败: %v", id, err)
		return
	}
	result, err := handler(ctx, t.PayloadJSON)
	if err != nil {
		logger.Warnf("任务 %s (%s) 失败: %v", id, t.Kind, err)
		if ferr := r.store.Fail(ctx, id, err.Error()); ferr != nil {
			logger.Errorf("写入任务 %s 失败状态出错: %v", id, ferr)
		}
		return
	}
	if cerr := r.store.Complete(ctx, id, result); cerr != nil {
		logger.Errorf("写入任务 %s 完成状态出错: %v", id, cerr)
	}
}
