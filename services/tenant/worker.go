package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/replyforge/replyforge/config"
	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
	"github.com/replyforge/replyforge/services/poller"
	"github.com/replyforge/replyforge/services/processor"
)

type pollerHandle struct {
	account models.MailboxAccount
	cancel  context.CancelFunc
	done    chan struct{}
}

// Worker keeps one tenant's mailbox pollers aligned with the tenant's stored
// configuration. It re-reads the tenant record on a fixed cadence and starts,
// stops or restarts pollers so the running set matches the configured set.
type Worker struct {
	tenantID string
	tenants  interfaces.TenantRepository
	messages interfaces.MessageRepository

	generator      interfaces.GenerationService
	sender         interfaces.OutboundSender
	dialer         interfaces.InboundDialer
	metricsFactory interfaces.MetricsFactory
	publisher      processor.ReplyEventPublisher
	log            logger.Logger
	cfg            *config.FleetConfig

	mu      sync.Mutex
	running bool
	pollers map[string]*pollerHandle

	// metrics and proc are rebuilt when the tenant's metrics credentials
	// change; pollers started before the change keep the old sink until
	// they are restarted.
	metrics    interfaces.MetricsSink
	metricsKey string
	proc       *processor.Processor
}

func NewWorker(
	tenantID string,
	tenants interfaces.TenantRepository,
	messages interfaces.MessageRepository,
	generator interfaces.GenerationService,
	sender interfaces.OutboundSender,
	dialer interfaces.InboundDialer,
	metricsFactory interfaces.MetricsFactory,
	publisher processor.ReplyEventPublisher,
	log logger.Logger,
	cfg *config.FleetConfig,
) *Worker {
	return &Worker{
		tenantID:       tenantID,
		tenants:        tenants,
		messages:       messages,
		generator:      generator,
		sender:         sender,
		dialer:         dialer,
		metricsFactory: metricsFactory,
		publisher:      publisher,
		log:            log,
		cfg:            cfg,
		pollers:        make(map[string]*pollerHandle),
	}
}

// Run reconciles pollers until ctx is cancelled, then drains every poller
// before returning. Callers that need a bounded shutdown should wait on
// Run's completion with their own deadline.
func (w *Worker) Run(ctx context.Context) {
	w.setRunning(true)
	defer w.setRunning(false)

	w.sync(ctx)

	ticker := time.NewTicker(w.cfg.TenantSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			return
		case <-ticker.C:
			w.sync(ctx)
		}
	}
}

// sync performs one reconciliation pass. Store failures skip the pass and
// leave the current pollers untouched.
func (w *Worker) sync(ctx context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Worker.sync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagTenant(span, w.tenantID)

	w.mu.Lock()
	defer w.mu.Unlock()

	tenant, err := w.tenants.GetByID(ctx, w.tenantID)
	if err != nil {
		tracing.TraceErr(span, err)
		w.log.Warnf("tenant sync skipped for %s: %v", w.tenantID, err)
		return
	}
	if tenant == nil {
		// The fleet manager removes workers of deleted tenants on its
		// own cadence; until then there is nothing to reconcile.
		w.log.Warnf("tenant %s not found, keeping pollers until fleet reconciles", w.tenantID)
		return
	}

	w.refreshMetricsLocked(tenant)

	desired := tenant.MailboxAddresses()

	for address, handle := range w.pollers {
		account, keep := desired[address]
		if keep && !connectionChanged(handle.account, account) {
			continue
		}
		// Stop-and-wait before the address can be started again so
		// two pollers never share a mailbox.
		w.stopPollerLocked(ctx, address, handle)
	}

	for address, account := range desired {
		if _, exists := w.pollers[address]; exists {
			continue
		}
		w.startPollerLocked(ctx, account)
	}

	w.metrics.Gauge(ctx, "imap.accounts.active", float64(len(w.pollers)), nil)
	span.LogKV("pollers.active", len(w.pollers))
}

func (w *Worker) refreshMetricsLocked(tenant *models.Tenant) {
	key := tenant.MetricsAPIKey + "|" + tenant.MetricsSite
	if w.metrics != nil && key == w.metricsKey {
		return
	}
	w.metrics = w.metricsFactory(tenant.MetricsAPIKey, tenant.MetricsSite)
	w.metricsKey = key
	w.proc = processor.NewProcessor(
		w.tenantID,
		w.tenants,
		w.messages,
		w.generator,
		w.sender,
		w.metrics,
		w.publisher,
		w.log,
	)
}

// connectionChanged reports whether a running poller must be restarted to
// pick up new credentials or endpoints.
func connectionChanged(current, desired models.MailboxAccount) bool {
	return current.Password != desired.Password ||
		current.ImapAddr != desired.ImapAddr ||
		current.SmtpAddr != desired.SmtpAddr
}

func (w *Worker) startPollerLocked(ctx context.Context, account models.MailboxAccount) {
	pollerCtx, cancel := context.WithCancel(ctx)
	handle := &pollerHandle{
		account: account,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	w.pollers[account.Address] = handle

	mailboxPoller := poller.NewPoller(account, w.dialer, w.proc, w.metrics, w.log, w.cfg.PollInterval)

	go func() {
		defer close(handle.done)
		defer func() {
			if r := recover(); r != nil {
				w.log.Errorf("poller for %s panicked: %v", account.Address, r)
			}
		}()
		mailboxPoller.Run(pollerCtx)
	}()

	w.metrics.Increment(ctx, "imap.accounts.started", []string{"mailbox:" + account.Address})
	w.log.Infof("started poller for %s", account.Address)
}

func (w *Worker) stopPollerLocked(ctx context.Context, address string, handle *pollerHandle) {
	handle.cancel()
	<-handle.done
	delete(w.pollers, address)
	w.metrics.Increment(ctx, "imap.accounts.stopped", []string{"mailbox:" + address})
	w.log.Infof("stopped poller for %s", address)
}

// drain cancels every poller and waits for it to exit.
func (w *Worker) drain(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for address, handle := range w.pollers {
		handle.cancel()
		<-handle.done
		delete(w.pollers, address)
		if w.metrics != nil {
			w.metrics.Increment(ctx, "imap.accounts.stopped", []string{"mailbox:" + address})
		}
	}
	if w.metrics != nil {
		w.metrics.Gauge(ctx, "imap.accounts.active", 0, nil)
	}
	w.log.Infof("tenant worker %s drained", w.tenantID)
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = running
}

// Status snapshots the worker for the status endpoint.
func (w *Worker) Status() interfaces.TenantStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	active := make([]string, 0, len(w.pollers))
	for address := range w.pollers {
		active = append(active, address)
	}
	return interfaces.TenantStatus{
		TenantID:      w.tenantID,
		Running:       w.running,
		ActivePollers: active,
	}
}
