package fleet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replyforge/replyforge/config"
	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/tracing"
	"github.com/replyforge/replyforge/services/processor"
	"github.com/replyforge/replyforge/services/tenant"
)

type workerHandle struct {
	worker *tenant.Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one tenant worker per tenant in the store. Reconcile is
// called on a fixed cadence by the scheduler and diffs the stored tenant set
// against the running worker set.
type Manager struct {
	tenants  interfaces.TenantRepository
	messages interfaces.MessageRepository

	generator      interfaces.GenerationService
	sender         interfaces.OutboundSender
	dialer         interfaces.InboundDialer
	metricsFactory interfaces.MetricsFactory
	publisher      processor.ReplyEventPublisher
	registry       *logger.Registry
	log            logger.Logger
	cfg            *config.FleetConfig

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	workers map[string]*workerHandle
}

func NewManager(
	tenants interfaces.TenantRepository,
	messages interfaces.MessageRepository,
	generator interfaces.GenerationService,
	sender interfaces.OutboundSender,
	dialer interfaces.InboundDialer,
	metricsFactory interfaces.MetricsFactory,
	publisher processor.ReplyEventPublisher,
	registry *logger.Registry,
	log logger.Logger,
	cfg *config.FleetConfig,
) *Manager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		tenants:        tenants,
		messages:       messages,
		generator:      generator,
		sender:         sender,
		dialer:         dialer,
		metricsFactory: metricsFactory,
		publisher:      publisher,
		registry:       registry,
		log:            log,
		cfg:            cfg,
		baseCtx:        baseCtx,
		baseCancel:     baseCancel,
		workers:        make(map[string]*workerHandle),
	}
}

// Reconcile makes the running worker set equal to the stored tenant set.
// When the tenant list cannot be read the pass is skipped and the current
// workers keep running.
func (m *Manager) Reconcile(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Manager.Reconcile")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	tenantIDs, err := m.tenants.ListTenantIDs(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to list tenants")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	desired := make(map[string]struct{}, len(tenantIDs))
	for _, id := range tenantIDs {
		desired[id] = struct{}{}
	}

	for tenantID, handle := range m.workers {
		if _, keep := desired[tenantID]; keep {
			continue
		}
		m.stopWorkerLocked(tenantID, handle)
	}

	for tenantID := range desired {
		if _, exists := m.workers[tenantID]; exists {
			continue
		}
		m.startWorkerLocked(tenantID)
	}

	span.LogKV("workers.active", len(m.workers))
	return nil
}

func (m *Manager) startWorkerLocked(tenantID string) {
	workerCtx, cancel := context.WithCancel(m.baseCtx)
	worker := tenant.NewWorker(
		tenantID,
		m.tenants,
		m.messages,
		m.generator,
		m.sender,
		m.dialer,
		m.metricsFactory,
		m.publisher,
		m.registry.ForTenant(tenantID),
		m.cfg,
	)
	handle := &workerHandle{
		worker: worker,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.workers[tenantID] = handle

	go func() {
		defer close(handle.done)
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("tenant worker %s panicked: %v", tenantID, r)
			}
		}()
		worker.Run(workerCtx)
	}()

	m.log.Infof("started tenant worker %s", tenantID)
}

func (m *Manager) stopWorkerLocked(tenantID string, handle *workerHandle) {
	handle.cancel()
	select {
	case <-handle.done:
	case <-time.After(m.cfg.StopTimeout):
		m.log.Warnf("tenant worker %s did not drain within %s", tenantID, m.cfg.StopTimeout)
	}
	delete(m.workers, tenantID)
	m.registry.Release(tenantID)
	m.log.Infof("stopped tenant worker %s", tenantID)
}

// Stop cancels every worker and waits for the drain to finish or ctx to
// expire. After Stop the manager refuses further reconciliation.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	m.stopped = true
	handles := make(map[string]*workerHandle, len(m.workers))
	for tenantID, handle := range m.workers {
		handles[tenantID] = handle
	}
	m.workers = make(map[string]*workerHandle)
	m.mu.Unlock()

	m.baseCancel()

	for tenantID, handle := range handles {
		select {
		case <-handle.done:
			m.registry.Release(tenantID)
		case <-ctx.Done():
			m.log.Warnf("shutdown deadline reached before tenant worker %s drained", tenantID)
			return
		}
	}
	m.log.Info("all tenant workers stopped")
}

// Status snapshots every worker, ordered by tenant id.
func (m *Manager) Status() []interfaces.TenantStatus {
	m.mu.Lock()
	handles := make([]*workerHandle, 0, len(m.workers))
	for _, handle := range m.workers {
		handles = append(handles, handle)
	}
	m.mu.Unlock()

	statuses := make([]interfaces.TenantStatus, 0, len(handles))
	for _, handle := range handles {
		statuses = append(statuses, handle.worker.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].TenantID < statuses[j].TenantID
	})
	return statuses
}
