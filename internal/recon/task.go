package recon

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/lock"
	"github.com/liftmode/netcents-gateway/internal/payment"
)

// TaskSweep is the asynq task type for a reconciliation sweep.
const TaskSweep = "recon:sweep"

// NewSweepTask builds the periodic sweep task. It carries no payload;
// the sweep always scans the full pending set.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSweep, nil, asynq.MaxRetry(0))
}

// TaskHandler runs sweeps from the worker queue. A distributed lock
// keeps concurrent workers from sweeping the same method at once;
// overlapping runs skip instead of piling up.
type TaskHandler struct {
	Service *Service
	Locker  lock.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// Register attaches the handler to the worker mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSweep, h.ProcessTask)
}

// ProcessTask implements asynq.Handler.
func (h *TaskHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	method := h.Service.Method
	if method == "" {
		method = payment.MethodCode
	}
	err := h.Locker.TryWithLock(ctx, lock.SweepKey(method), h.LockTTL, func(ctx context.Context) error {
		_, err := h.Service.Sweep(ctx)
		return err
	})
	if errors.Is(err, lock.ErrHeld) {
		h.Logger.Debug().Msg("recon_sweep_already_running")
		return nil
	}
	return err
}
