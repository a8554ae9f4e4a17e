package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// schedulerServiceImpl is the durable, single-node cron-like job engine,
// built around a fixed-interval tick loop: each
// tick loads due jobs from storage and fans callback execution out
// concurrently, guarded per job by a JobLock so a callback running long
// never overlaps its own next invocation, even across replicas.
type schedulerServiceImpl struct {
	db            *gorm.DB
	lock          *JobLock
	tickInterval  time.Duration
	shutdownGrace time.Duration

	mu              sync.RWMutex
	callbacks       map[string]services.SchedulerCallback
	defaultCallback services.SchedulerCallback
	running         map[uuid.UUID]context.CancelFunc

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSchedulerService(db *gorm.DB, lock *JobLock, tickInterval, shutdownGrace time.Duration) services.SchedulerService {
	if tickInterval <= 0 {
		tickInterval = 60 * time.Second
	}
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}
	return &schedulerServiceImpl{
		db:            db,
		lock:          lock,
		tickInterval:  tickInterval,
		shutdownGrace: shutdownGrace,
		callbacks:     make(map[string]services.SchedulerCallback),
		running:       make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *schedulerServiceImpl) RegisterCallback(name string, fn services.SchedulerCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = fn
}

// RegisterDefaultCallback installs the callback used for any job whose
// "digest_<digest_type>" name has no exact registration. digest_type is
// a free tag, so jobs with novel types must still execute rather than
// be silently skipped.
func (s *schedulerServiceImpl) RegisterDefaultCallback(fn services.SchedulerCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultCallback = fn
}

// Start runs the tick loop in the background until Stop is called or ctx
// is cancelled. It returns once the first tick has been scheduled.
func (s *schedulerServiceImpl) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)
	log.Printf("[SCHEDULER] started, tick interval %s", s.tickInterval)
	return nil
}

func (s *schedulerServiceImpl) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SCHEDULER] loop cancelled")
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				log.Printf("[SCHEDULER] tick error: %v", err)
			}
		}
	}
}

// tick loads every active job whose NextRun has passed and executes its
// callback concurrently, one goroutine per due job.
func (s *schedulerServiceImpl) tick(ctx context.Context) error {
	var due []models.ScheduledJob
	now := time.Now()
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_run <= ? AND deleted_at IS NULL", true, now).
		Find(&due).Error; err != nil {
		return fmt.Errorf("failed to load due jobs: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	for i := range due {
		job := due[i]
		group.Go(func() error {
			s.execute(gctx, job)
			return nil
		})
	}
	return group.Wait()
}

// execute runs one job's callback under its distributed lock. A callback
// failure never blocks LastRun/NextRun from advancing: the job must keep
// ticking forward even if the delivery it triggers fails. A cooperative
// cancel (CancelJob or Stop) also leaves next_run alone, so the job may
// fire again unless it was deactivated too.
func (s *schedulerServiceImpl) execute(ctx context.Context, job models.ScheduledJob) {
	s.mu.Lock()
	if _, inflight := s.running[job.ID]; inflight {
		s.mu.Unlock()
		log.Printf("[SCHEDULER] job %s still running in this process, skipping tick", job.ID)
		return
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	s.running[job.ID] = cancelRun
	s.mu.Unlock()
	defer func() {
		cancelRun()
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
	}()

	acquired, err := s.lock.Acquire(ctx, job.ID)
	if err != nil {
		log.Printf("[SCHEDULER] failed to acquire lock for job %s: %v", job.ID, err)
		return
	}
	if !acquired {
		log.Printf("[SCHEDULER] job %s already running elsewhere, skipping tick", job.ID)
		return
	}
	defer s.lock.Release(ctx, job.ID)

	callbackName := job.CallbackName()
	s.mu.RLock()
	callback, ok := s.callbacks[callbackName]
	if !ok && s.defaultCallback != nil {
		callback, ok = s.defaultCallback, true
	}
	s.mu.RUnlock()

	success := false
	if !ok {
		log.Printf("[SCHEDULER] no callback registered for %q, job %s skipped", callbackName, job.ID)
	} else if err := callback(runCtx, job); err != nil {
		if runCtx.Err() != nil {
			log.Printf("[SCHEDULER] job %s execution cancelled", job.ID)
			return
		}
		log.Printf("[SCHEDULER] job %s callback %q failed: %v", job.ID, callbackName, err)
	} else {
		success = true
	}

	nextRun, err := job.ComputeNextRun(time.Now())
	if err != nil {
		log.Printf("[SCHEDULER] job %s has an invalid schedule, leaving next_run unchanged: %v", job.ID, err)
		nextRun = job.NextRun
	}

	now := time.Now()
	updates := map[string]any{
		"last_run":     &now,
		"last_success": &success,
		"next_run":     nextRun,
		"updated_at":   now,
	}
	if err := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		log.Printf("[SCHEDULER] failed to advance job %s: %v", job.ID, err)
	}
}

func (s *schedulerServiceImpl) Stop(ctx context.Context, grace time.Duration) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	if grace <= 0 {
		grace = s.shutdownGrace
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("scheduler did not stop within %s", grace)
	}
}

func (s *schedulerServiceImpl) Schedule(ctx context.Context, req models.CreateScheduledJobRequest) (*models.ScheduledJob, error) {
	if req.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", services.ErrInvalid)
	}
	deliveryMethod := req.DeliveryMethod
	if deliveryMethod == "" {
		deliveryMethod = models.InferDeliveryMethod(req.Recipient)
	}
	if deliveryMethod != models.DeliveryEmail && deliveryMethod != models.DeliveryWhatsApp {
		return nil, fmt.Errorf("%w: unknown delivery method %q", services.ErrInvalid, deliveryMethod)
	}

	job := &models.ScheduledJob{
		ID:             uuid.New(),
		Name:           req.Name,
		DigestType:     req.DigestType,
		ScheduleType:   req.ScheduleType,
		TimeOfDay:      req.TimeOfDay,
		Recipient:      req.Recipient,
		DeliveryMethod: deliveryMethod,
		Filter:         req.Filter,
		IsActive:       true,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	nextRun, err := job.ComputeNextRun(time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrInvalid, err)
	}
	job.NextRun = nextRun

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}
	return job, nil
}

func (s *schedulerServiceImpl) UpdateJob(ctx context.Context, id uuid.UUID, req models.UpdateScheduledJobRequest) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&job).Error; err != nil {
		return nil, fmt.Errorf("%w: job %s", services.ErrNotFound, id)
	}

	scheduleChanged := req.ScheduleType != nil && *req.ScheduleType != job.ScheduleType
	if req.ScheduleType != nil {
		job.ScheduleType = *req.ScheduleType
	}
	timeChanged := req.TimeOfDay != nil && *req.TimeOfDay != job.TimeOfDay
	if req.TimeOfDay != nil {
		job.TimeOfDay = *req.TimeOfDay
	}
	if req.Recipient != nil {
		job.Recipient = *req.Recipient
		if req.DeliveryMethod == nil {
			job.DeliveryMethod = models.InferDeliveryMethod(*req.Recipient)
		}
	}
	if req.DeliveryMethod != nil {
		if *req.DeliveryMethod != models.DeliveryEmail && *req.DeliveryMethod != models.DeliveryWhatsApp {
			return nil, fmt.Errorf("%w: unknown delivery method %q", services.ErrInvalid, *req.DeliveryMethod)
		}
		job.DeliveryMethod = *req.DeliveryMethod
	}
	if req.Filter != nil {
		job.Filter = *req.Filter
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}

	// Only a schedule or time change (and only while active) triggers a
	// reschedule; a no-op update leaves next_run untouched.
	if (scheduleChanged || timeChanged) && job.IsActive {
		nextRun, err := job.ComputeNextRun(time.Now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrInvalid, err)
		}
		job.NextRun = nextRun
	}
	job.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return &job, nil
}

// CancelJob soft-cancels a job: it flips IsActive to false so the tick
// loop stops picking it up, cancels any in-flight execution of it in
// this process, and leaves the row (and its run history) intact.
func (s *schedulerServiceImpl) CancelJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if cancelRun, inflight := s.running[id]; inflight {
		cancelRun()
	}
	s.mu.Unlock()

	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{"is_active": false, "updated_at": now})
	if result.Error != nil {
		return fmt.Errorf("failed to cancel job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s", services.ErrNotFound, id)
	}
	return nil
}

func (s *schedulerServiceImpl) GetJob(ctx context.Context, id uuid.UUID) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&job).Error; err != nil {
		return nil, fmt.Errorf("%w: job %s", services.ErrNotFound, id)
	}
	return &job, nil
}

func (s *schedulerServiceImpl) ListJobs(ctx context.Context, activeOnly bool) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	query := s.db.WithContext(ctx).Where("deleted_at IS NULL")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("next_run ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
