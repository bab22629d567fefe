package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/pkg/cache"
	applogger "FinHybrid/pkg/logger"

	"github.com/google/uuid"
)

// Trainer is the training surface of the hybrid model.
type Trainer interface {
	Train(ctx context.Context, data [][]models.FeatureRecord, labels [][]float64) error
	History() []models.EpochMetrics
}

// Locker is the subset of cache.Service used to serialise training across replicas.
type Locker interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

// ErrTrainingLockLost fails a job whose lock lease was taken over or could not be renewed in time.
var ErrTrainingLockLost = errors.New("training lock lost")

var trainLockKey = cache.GenerateKey("lock", "train")

// TrainUseCase runs at most one asynchronous training job and tracks its status.
type TrainUseCase struct {
	model   Trainer
	locker  Locker
	metrics domrepo.Metrics
	l       *applogger.Logger
	lockTTL time.Duration
	timeout time.Duration

	mu     sync.Mutex
	status models.TrainingStatus
	cancel context.CancelFunc
	done   chan struct{}
}

type TrainOption func(*TrainUseCase)

// WithTrainLock serialises jobs through locker. The lock is a lease of ttl renewed while the job runs.
func WithTrainLock(locker Locker, ttl time.Duration) TrainOption {
	return func(u *TrainUseCase) {
		u.locker = locker
		u.lockTTL = ttl
	}
}

// WithTrainTimeout bounds a single job.
func WithTrainTimeout(d time.Duration) TrainOption {
	return func(u *TrainUseCase) { u.timeout = d }
}

func WithTrainLogger(l *applogger.Logger) TrainOption {
	return func(u *TrainUseCase) { u.l = l }
}

func WithTrainMetrics(m domrepo.Metrics) TrainOption {
	return func(u *TrainUseCase) { u.metrics = m }
}

func NewTrainUseCase(model Trainer, opts ...TrainOption) *TrainUseCase {
	u := &TrainUseCase{
		model:   model,
		l:       applogger.Nop(),
		lockTTL: time.Minute,
		timeout: time.Hour,
		status:  models.TrainingStatus{State: models.TrainingIdle},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Start validates req and launches a training job in the background.
// It returns hybrid.ErrTrainingInProgress while another job runs here or holds the shared lock.
func (u *TrainUseCase) Start(ctx context.Context, req models.TrainRequest) (models.TrainingStatus, error) {
	data, labels, err := trainingSet(req)
	if err != nil {
		return models.TrainingStatus{}, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status.State == models.TrainingRunning {
		return u.status, hybrid.ErrTrainingInProgress
	}

	jobID := uuid.NewString()
	if u.locker != nil {
		ok, err := u.locker.TryLock(ctx, trainLockKey, jobID, u.lockTTL)
		if err != nil {
			return models.TrainingStatus{}, fmt.Errorf("acquire training lock: %w", err)
		}
		if !ok {
			return models.TrainingStatus{}, hybrid.ErrTrainingInProgress
		}
	}

	startedAt := time.Now().UTC()
	u.status = models.TrainingStatus{
		State:     models.TrainingRunning,
		JobID:     jobID,
		Samples:   len(data),
		StartedAt: &startedAt,
	}
	jobCtx, cancel := context.WithCancelCause(context.Background())
	jobCtx, stop := context.WithTimeout(jobCtx, u.timeout)
	u.cancel = stop
	u.done = make(chan struct{})
	if u.locker != nil {
		go u.keepLock(jobCtx, jobID, cancel)
	}
	go u.run(jobCtx, jobID, data, labels, func() { cancel(nil) }, u.done)

	u.l.Info("training job started",
		applogger.String("job_id", u.status.JobID),
		applogger.Int("samples", len(data)),
	)
	return u.status, nil
}

// keepLock renews the lease every lockTTL/3 until ctx ends. It cancels the job with
// ErrTrainingLockLost once another owner holds the key or renewals fail for a whole lease.
func (u *TrainUseCase) keepLock(ctx context.Context, jobID string, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(u.lockTTL/3, time.Millisecond))
	defer ticker.Stop()
	renewed := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := u.locker.Refresh(ctx, trainLockKey, jobID, u.lockTTL)
		switch {
		case err != nil && time.Since(renewed) < u.lockTTL:
			u.l.Warn("renew training lock", applogger.String("job_id", jobID), applogger.Error(err))
			continue
		case err != nil:
			cancel(fmt.Errorf("%w: %v", ErrTrainingLockLost, err))
			return
		case !ok:
			cancel(ErrTrainingLockLost)
			return
		}
		renewed = time.Now()
	}
}

func (u *TrainUseCase) run(ctx context.Context, jobID string, data [][]models.FeatureRecord, labels [][]float64, release func(), done chan struct{}) {
	defer close(done)
	start := time.Now()
	before := len(u.model.History())

	err := u.model.Train(ctx, data, labels)
	if cause := context.Cause(ctx); err != nil && errors.Is(cause, ErrTrainingLockLost) {
		err = cause
	}
	epochs := len(u.model.History()) - before
	release()

	if u.locker != nil {
		if uerr := u.locker.Unlock(context.Background(), trainLockKey, jobID); uerr != nil {
			u.l.Warn("release training lock", applogger.String("job_id", jobID), applogger.Error(uerr))
		}
	}
	if u.metrics != nil {
		u.metrics.RecordLatency("train_job_seconds", time.Since(start).Seconds())
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.cancel()
	finishedAt := time.Now().UTC()
	u.status.Epochs = epochs
	u.status.FinishedAt = &finishedAt
	if err != nil {
		u.status.State = models.TrainingFailed
		u.status.Error = err.Error()
		if u.metrics != nil {
			u.metrics.RecordError("train")
		}
		u.l.Error("training job failed", applogger.String("job_id", jobID), applogger.Error(err))
		return
	}
	u.status.State = models.TrainingCompleted
	u.l.Info("training job completed",
		applogger.String("job_id", jobID),
		applogger.Int("epochs", epochs),
		applogger.Duration("elapsed", time.Since(start)),
	)
}

// Status reports the most recent job.
func (u *TrainUseCase) Status() models.TrainingStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// History returns the per-epoch metrics, limited to the last n entries when n > 0.
func (u *TrainUseCase) History(n int) []models.EpochMetrics {
	h := u.model.History()
	if n > 0 && n < len(h) {
		h = h[len(h)-n:]
	}
	return h
}

// Wait blocks until the current job finishes or ctx ends.
func (u *TrainUseCase) Wait(ctx context.Context) error {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels a running job and waits for it to stop.
func (u *TrainUseCase) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	if u.cancel != nil {
		u.cancel()
	}
	u.mu.Unlock()
	return u.Wait(ctx)
}

// ErrInvalidLabel is returned for a sample whose label is not a known signal.
var ErrInvalidLabel = errors.New("invalid training label")

func trainingSet(req models.TrainRequest) ([][]models.FeatureRecord, [][]float64, error) {
	if len(req.Samples) == 0 {
		return nil, nil, hybrid.ErrEmptyInput
	}
	data := make([][]models.FeatureRecord, len(req.Samples))
	labels := make([][]float64, len(req.Samples))
	for i, s := range req.Samples {
		if s.Label.Index() < 0 {
			return nil, nil, fmt.Errorf("%w: sample %d: %q", ErrInvalidLabel, i, s.Label)
		}
		data[i] = s.Records
		labels[i] = models.OneHot(s.Label, len(models.SignalClasses))
	}
	return data, labels, nil
}
