package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// maxEncodeContentChars bounds how much episode content is sent to the
// encoder per job.
const maxEncodeContentChars = 4000

// truncateForEncoding trims content to at most maxEncodeContentChars runes,
// never splitting a multi-byte rune.
func truncateForEncoding(content string) string {
	if utf8.RuneCountInString(content) <= maxEncodeContentChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxEncodeContentChars])
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that polls for and processes embedding jobs.
type Worker struct {
	id       string
	podID    string
	store    *storage.Pool
	config   *config.QueueConfig
	encoder  Encoder
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, store *storage.Pool, cfg *config.QueueConfig, encoder Encoder) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		config:       cfg,
		encoder:      encoder,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, storage.ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing embedding job", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next pending job and encodes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.Jobs.ClaimNext(ctx, w.podID+"/"+w.id)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "episode_id", job.EpisodeID, "worker_id", w.id)
	log.Info("Embedding job claimed")

	w.setStatus(WorkerStatusWorking, job.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.config.ClaimTimeout)
	defer cancel()

	episode, err := w.store.Episodes.GetByID(jobCtx, job.EpisodeID)
	if err != nil {
		w.fail(log, job.ID, fmt.Errorf("loading episode: %w", err))
		return nil
	}

	embedding, version, err := w.encoder.Encode(jobCtx, truncateForEncoding(episode.Content))
	if err != nil {
		w.fail(log, job.ID, fmt.Errorf("encoding episode: %w", err))
		return nil
	}

	if err := w.store.Episodes.UpdateEmbedding(context.Background(), episode.ID, embedding, version); err != nil {
		w.fail(log, job.ID, fmt.Errorf("storing embedding: %w", err))
		return nil
	}

	if err := w.store.Jobs.MarkDone(context.Background(), job.ID); err != nil {
		log.Error("Failed to mark embedding job done", "error", err)
		return err
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("Embedding job complete")
	return nil
}

// fail records a job failure, bounded by config.MaxRetries before the job
// reaches the terminal "dead" state (the poison-job isolation guarantee).
func (w *Worker) fail(log *slog.Logger, jobID uuid.UUID, cause error) {
	if err := w.store.Jobs.MarkFailed(context.Background(), jobID, cause.Error(), w.config.MaxRetries); err != nil {
		log.Error("Failed to record embedding job failure", "error", err, "cause", cause)
		return
	}
	log.Warn("Embedding job failed", "cause", cause)
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
