package background

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smartlibrary/internal/services"

	"github.com/go-co-op/gocron/v2"
)

const expirySweepJob = "subscription-expiry-sweep"

// SubscriptionExpirer is the part of the subscription service the sweeper drives.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

// JobScheduler runs the periodic maintenance jobs of the payment service.
type JobScheduler struct {
	scheduler     gocron.Scheduler
	subscriptions SubscriptionExpirer
	sweepInterval time.Duration
	now           func() time.Time
	jobs          map[string]gocron.Job
	mu            sync.RWMutex
}

var _ SubscriptionExpirer = (services.SubscriptionService)(nil)

// NewJobScheduler creates a scheduler that expires lapsed subscriptions every sweepInterval.
func NewJobScheduler(subscriptions SubscriptionExpirer, sweepInterval time.Duration) (*JobScheduler, error) {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler:     scheduler,
		subscriptions: subscriptions,
		sweepInterval: sweepInterval,
		now:           time.Now,
		jobs:          make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.sweepInterval),
		gocron.NewTask(js.SweepExpired, context.Background()),
		gocron.WithName(expirySweepJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create expiry sweep job: %w", err)
	}
	js.jobs[expirySweepJob] = sweepJob

	log.Printf("Registered %d background jobs", len(js.jobs))
	return nil
}

// SweepExpired expires every active subscription whose expiry date has passed.
func (js *JobScheduler) SweepExpired(ctx context.Context) error {
	expired, err := js.subscriptions.ExpireLapsed(ctx, js.now())
	if err != nil {
		log.Printf("Subscription expiry sweep failed: %v", err)
		return err
	}
	if expired > 0 {
		log.Printf("Expired %d lapsed subscriptions", expired)
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]map[string]interface{}, 0, len(js.jobs))
	for name, job := range js.jobs {
		entry := map[string]interface{}{"name": name}
		if next, err := job.NextRun(); err == nil {
			entry["next_run"] = next
		}
		if last, err := job.LastRun(); err == nil && !last.IsZero() {
			entry["last_run"] = last
		}
		jobs = append(jobs, entry)
	}

	return map[string]interface{}{
		"total_jobs": len(js.jobs),
		"jobs":       jobs,
	}
}
