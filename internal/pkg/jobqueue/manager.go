package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/DealerDesk/app/models"
	"github.com/ManuelReschke/DealerDesk/app/repository"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/mail"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/metrics/counter"
)

const (
	// NoticeHorizon is how far ahead of a window end the notice goes out.
	NoticeHorizon = 3 * entitlements.Day

	noticeClaimPrefix     = "dealerdesk:notice:"
	defaultFlushInterval  = 5 * time.Second
	defaultExpiryInterval = time.Hour
)

// Deps wires the manager to storage and mail.
type Deps struct {
	Redis          *redis.Client
	Usage          *counter.UsageCounter
	Companies      repository.CompanyRepository
	Members        repository.TeamMemberRepository
	Entitlements   repository.EntitlementRepository
	Mailer         mail.Sender
	Workers        int
	ExpiryInterval time.Duration
}

// Manager manages the job queue and the periodic background tasks
type Manager struct {
	queue          *Queue
	rdb            *redis.Client
	usage          *counter.UsageCounter
	entitlements   repository.EntitlementRepository
	flushInterval  time.Duration
	expiryInterval time.Duration
	now            func() time.Time
	flushTicker    *time.Ticker
	expiryTicker   *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

var (
	globalManager *Manager
	managerMu     sync.RWMutex
)

// NewManager builds a manager and registers the job processors.
func NewManager(d Deps) *Manager {
	expiryInterval := d.ExpiryInterval
	if expiryInterval <= 0 {
		expiryInterval = defaultExpiryInterval
	}
	m := &Manager{
		queue:          NewQueue(d.Redis, d.Workers),
		rdb:            d.Redis,
		usage:          d.Usage,
		entitlements:   d.Entitlements,
		flushInterval:  defaultFlushInterval,
		expiryInterval: expiryInterval,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}

	notices := &ExpiryNoticeProcessor{
		Companies:    d.Companies,
		Members:      d.Members,
		Entitlements: d.Entitlements,
		Mailer:       d.Mailer,
		Now:          time.Now,
	}
	m.queue.Register(JobTypeExpiryNotice, notices.Process)
	m.queue.Register(JobTypeUsageFlush, m.processUsageFlush)
	return m
}

// SetManager installs the process-wide manager used by handlers.
func SetManager(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetManager returns the process-wide manager, nil before SetManager.
func GetManager() *Manager {
	managerMu.RLock()
	defer managerMu.RUnlock()
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.usage != nil {
		m.flushTicker = time.NewTicker(m.flushInterval)
		m.wg.Add(1)
		go m.tickerWorker("usage flush", m.flushTicker, m.stopCh, func(ctx context.Context) error {
			_, err := m.usage.Flush(ctx)
			return err
		})
	}

	m.expiryTicker = time.NewTicker(m.expiryInterval)
	m.wg.Add(1)
	go m.tickerWorker("expiry scan", m.expiryTicker, m.stopCh, func(ctx context.Context) error {
		_, err := m.ScanExpiring(ctx)
		return err
	})

	log.Infof("[JobQueue Manager] Started (flush every %s, expiry scan every %s)", m.flushInterval, m.expiryInterval)
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}
	if m.expiryTicker != nil {
		m.expiryTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	// One last drain so buffered usage is not left behind.
	if m.usage != nil {
		if _, err := m.usage.Flush(context.Background()); err != nil {
			log.Errorf("[JobQueue Manager] Final usage flush failed: %v", err)
		}
	}

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) tickerWorker(name string, ticker *time.Ticker, stopCh chan struct{}, run func(ctx context.Context) error) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", name)
			return
		case <-ticker.C:
			if err := run(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", name, err)
			}
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// EnqueueUsageFlush asks a worker to drain pending usage now.
func (m *Manager) EnqueueUsageFlush(ctx context.Context) (*Job, error) {
	return m.queue.EnqueueJob(ctx, JobTypeUsageFlush, map[string]interface{}{})
}

func (m *Manager) processUsageFlush(ctx context.Context, job *Job) error {
	if m.usage == nil {
		return nil
	}
	n, err := m.usage.Flush(ctx)
	if err != nil {
		return err
	}
	log.Infof("[JobQueue] Usage flush job %s applied %d entitlements", job.ID, n)
	return nil
}

// ScanExpiring enqueues one notice per enabled entitlement ending within
// NoticeHorizon that has not been notified for its current end. A Redis
// claim keeps repeated scans from enqueueing the same notice twice.
func (m *Manager) ScanExpiring(ctx context.Context) (int, error) {
	now := m.now()
	ending, err := m.entitlements.ListEndingBetween(now, now.Add(NoticeHorizon))
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, n := range dueNotices(ending, now) {
		key := noticeClaimPrefix + strconv.FormatUint(uint64(n.EntitlementID), 10) + ":" + strconv.FormatInt(n.EndsAt.Unix(), 10)
		claimed, err := m.rdb.SetNX(ctx, key, 1, NoticeHorizon+entitlements.Day).Result()
		if err != nil {
			return enqueued, err
		}
		if !claimed {
			continue
		}
		if _, err := m.queue.EnqueueJob(ctx, JobTypeExpiryNotice, n.ToMap()); err != nil {
			_ = m.rdb.Del(ctx, key).Err()
			return enqueued, err
		}
		enqueued++
	}
	if enqueued > 0 {
		log.Infof("[JobQueue Manager] Enqueued %d expiry notices", enqueued)
	}
	return enqueued, nil
}

func dueNotices(ending []models.Entitlement, now time.Time) []ExpiryNoticeJobPayload {
	out := make([]ExpiryNoticeJobPayload, 0, len(ending))
	for i := range ending {
		e := &ending[i]
		if !e.Enabled || !e.NeedsExpiryNotice() {
			continue
		}
		card := entitlements.BuildCard(e.ToRecord(), now)
		if card.Expired {
			continue
		}
		out = append(out, ExpiryNoticeJobPayload{
			EntitlementID: e.ID,
			CompanyID:     e.CompanyID,
			Feature:       e.Feature,
			EndsAt:        *e.EndsAt,
			DaysLeft:      card.DaysLeft,
		})
	}
	return out
}
