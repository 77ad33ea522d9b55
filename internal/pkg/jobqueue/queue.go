package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis layout: job bodies live under JobKeyPrefix+id, IDs move from
// JobQueueKey to JobProcessingKey while a worker holds them. Failed jobs
// wait in JobDelayedKey, scored by due time in unix milliseconds.
const (
	JobKeyPrefix     = "dealerdesk:job:"
	JobQueueKey      = "dealerdesk:jobs"
	JobProcessingKey = "dealerdesk:jobs:processing"
	JobDelayedKey    = "dealerdesk:jobs:delayed"
	JobStatsKey      = "dealerdesk:jobs:stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour
)

const (
	stuckAfter      = 10 * time.Minute
	sweepInterval   = time.Minute
	promoteInterval = 5 * time.Second
	pollTimeout     = time.Second
)

// Processor handles one job type. A returned error marks the job failed.
type Processor func(ctx context.Context, job *Job) error

// Queue is a small reliable queue on Redis lists. Each worker blocks on
// BLMOVE, so a crashed worker leaves its job in the processing list where
// the sweeper finds it again. Retries wait in Redis as well, so a restart
// loses neither.
type Queue struct {
	client       *redis.Client
	workers      int
	processors   map[JobType]Processor
	retryBackoff time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		client:       client,
		workers:      workers,
		processors:   make(map[JobType]Processor),
		retryBackoff: time.Minute,
		stopCh:       make(chan struct{}),
	}
}

// Register binds a processor to a job type. Call before Start.
func (q *Queue) Register(jobType JobType, p Processor) {
	q.mu.Lock()
	q.processors[jobType] = p
	q.mu.Unlock()
}

func (q *Queue) processor(jobType JobType) (Processor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.processors[jobType]
	return p, ok
}

// Start launches the workers and the stuck-job sweeper. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	log.Infof("[Jobs] starting %d workers", q.workers)
	q.wg.Add(q.workers + 2)
	for i := 0; i < q.workers; i++ {
		go q.worker(i, q.stopCh)
	}
	go q.stuckSweeper(q.stopCh)
	go q.delayedPromoter(q.stopCh)
}

// Stop signals all goroutines and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[Jobs] workers stopped")
}

func (q *Queue) worker(n int, stop <-chan struct{}) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-stop:
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			log.Errorf("[Jobs] worker %d: dequeue: %v", n, err)
			time.Sleep(time.Second)
			continue
		}
		q.processJob(ctx, job)
	}
}

func (q *Queue) stuckSweeper(stop <-chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			n, err := q.recoverStuck(context.Background(), stuckAfter, now)
			if err != nil {
				log.Errorf("[Jobs] sweep: %v", err)
			} else if n > 0 {
				log.Warnf("[Jobs] requeued %d stuck jobs", n)
			}
		}
	}
}

func (q *Queue) delayedPromoter(stop <-chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := q.promoteDue(context.Background(), now); err != nil {
				log.Errorf("[Jobs] promote delayed: %v", err)
			}
		}
	}
}

// scheduleRetry parks a job ID in the delayed set until due.
func (q *Queue) scheduleRetry(ctx context.Context, id string, due time.Time) error {
	return q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(due.UnixMilli()), Member: id}).Err()
}

// promoteDue moves delayed jobs whose due time has passed back onto the
// pending queue. ZREM decides ownership, so concurrent promoters never push
// the same ID twice.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			// Put it back so the next tick retries the push.
			_ = q.scheduleRetry(ctx, id, now)
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// recoverStuck requeues processing jobs older than maxAge and drops
// processing entries whose job body is gone or no longer processing.
func (q *Queue) recoverStuck(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		log.Warnf("[Jobs] %s job %s stuck for %s", job.Type, job.ID, now.Sub(started).Round(time.Second))
		job.ErrorMsg = "recovered by sweeper"
		if err := q.requeueJob(ctx, job); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// EnqueueJob stores a new pending job and pushes its ID onto the queue.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, JobKeyPrefix+job.ID, body, JobTTL)
		p.LPush(ctx, JobQueueKey, job.ID)
		p.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	log.Debugf("[Jobs] enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// dequeueJob moves the oldest ID into the processing list and loads its body.
// It returns redis.Nil when nothing arrived within pollTimeout.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, JobQueueKey, JobProcessingKey, "RIGHT", "LEFT", pollTimeout).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	err := q.run(ctx, job)
	if err == nil {
		job.MarkAsCompleted()
		q.bumpStat(ctx, JobStatusCompleted)
		q.deleteJob(ctx, job.ID)
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	job.MarkAsFailed(err.Error())
	q.removeFromProcessing(ctx, job.ID)
	if !job.IsRetryable() {
		log.Errorf("[Jobs] %s job %s gave up after %d attempts: %v", job.Type, job.ID, job.RetryCount, err)
		q.bumpStat(ctx, JobStatusFailed)
		q.updateJob(ctx, job)
		return
	}

	job.MarkAsRetrying()
	q.updateJob(ctx, job)
	delay := q.retryBackoff * time.Duration(job.RetryCount)
	log.Warnf("[Jobs] %s job %s failed (attempt %d/%d), retry in %s: %v",
		job.Type, job.ID, job.RetryCount, job.MaxRetries, delay, err)

	if err := q.scheduleRetry(ctx, job.ID, time.Now().Add(delay)); err != nil {
		log.Errorf("[Jobs] schedule retry of %s: %v", job.ID, err)
	}
}

func (q *Queue) run(ctx context.Context, job *Job) error {
	p, ok := q.processor(job.Type)
	if !ok {
		return fmt.Errorf("no processor for job type %q", job.Type)
	}
	return p(ctx, job)
}

func (q *Queue) updateJob(ctx context.Context, job *Job) {
	body, err := json.Marshal(job)
	if err == nil {
		err = q.client.Set(ctx, JobKeyPrefix+job.ID, body, JobTTL).Err()
	}
	if err != nil {
		log.Errorf("[Jobs] save job %s: %v", job.ID, err)
	}
}

func (q *Queue) requeueJob(ctx context.Context, job *Job) error {
	job.Status = JobStatusPending
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, job)
	q.removeFromProcessing(ctx, job.ID)
	return q.client.RPush(ctx, JobQueueKey, job.ID).Err()
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[Jobs] release job %s: %v", id, err)
	}
}

func (q *Queue) deleteJob(ctx context.Context, id string) {
	if err := q.client.Del(ctx, JobKeyPrefix+id).Err(); err != nil {
		log.Errorf("[Jobs] delete job %s: %v", id, err)
	}
}

func (q *Queue) bumpStat(ctx context.Context, status JobStatus) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), 1).Err(); err != nil {
		log.Errorf("[Jobs] stats: %v", err)
	}
}

func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	body, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// GetJobStats returns lifetime counters per status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[JobStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[JobStatus(status)] = n
		}
	}
	return out, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetDelayedSize returns the number of jobs waiting for a retry.
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
