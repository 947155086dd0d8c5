package poller

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
)

// MessageHandler consumes one fetched message. A non-nil error means the
// message was not fully handled and must stay unseen.
type MessageHandler interface {
	Process(ctx context.Context, account models.MailboxAccount, inbound *models.InboundMessage) error
}

// Poller owns the connection lifecycle of a single mailbox: connect, poll
// for unseen messages on a fixed cadence, and reconnect with backoff after
// any failure. It runs until its context is cancelled.
type Poller struct {
	account      models.MailboxAccount
	dialer       interfaces.InboundDialer
	handler      MessageHandler
	metrics      interfaces.MetricsSink
	log          logger.Logger
	pollInterval time.Duration
}

func NewPoller(
	account models.MailboxAccount,
	dialer interfaces.InboundDialer,
	handler MessageHandler,
	metrics interfaces.MetricsSink,
	log logger.Logger,
	pollInterval time.Duration,
) *Poller {
	return &Poller{
		account:      account,
		dialer:       dialer,
		handler:      handler,
		metrics:      metrics,
		log:          log.With(logger.MailFields(account.Address, "")...),
		pollInterval: pollInterval,
	}
}

// Run drives the connect/poll/reconnect loop. It returns only when ctx is
// cancelled; every other failure is absorbed into a backoff and retried.
func (p *Poller) Run(ctx context.Context) {
	retry := &backoff.Backoff{
		Min:    5 * time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := p.dialer.Connect(ctx, p.account)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.reportFailure(ctx, "connect failed", err)
			if !p.sleep(ctx, retry.Duration()) {
				return
			}
			continue
		}

		p.log.Infof("connected to %s", p.account.ImapAddr)
		p.metrics.ServiceCheck(ctx, "imap.health", enum.CheckOK, p.mailboxTags(), "")
		retry.Reset()

		err = p.pollLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		p.reportFailure(ctx, "polling failed", err)
		if !p.sleep(ctx, retry.Duration()) {
			return
		}
	}
}

// pollLoop runs one cycle per tick until an error or cancellation. The first
// cycle waits a full interval after connecting, so the mailbox sees a steady
// cadence across reconnects. The error returned is the one that broke the
// connection.
func (p *Poller) pollLoop(ctx context.Context, conn interfaces.InboundConnection) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx, conn); err != nil {
				return err
			}
		}
	}
}

// pollOnce handles every currently unseen message. Messages are only marked
// seen after the handler succeeds, so a crash or transient failure leaves
// them eligible for the next cycle.
func (p *Poller) pollOnce(ctx context.Context, conn interfaces.InboundConnection) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Poller.pollOnce")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagMailbox(span, p.account.Address)

	uids, err := conn.SearchUnseen(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("unseen.count", len(uids))

	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		inbound, err := conn.Fetch(ctx, uid)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		if err := p.handler.Process(ctx, p.account, inbound); err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		if err := conn.MarkSeen(ctx, uid); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		p.metrics.Increment(ctx, "emails.processed", p.mailboxTags())
	}

	return nil
}

func (p *Poller) reportFailure(ctx context.Context, what string, err error) {
	p.log.Warnf("%s for %s: %v", what, p.account.Address, err)
	p.metrics.Increment(ctx, "errors.total", []string{"component:imap"})
	p.metrics.ServiceCheck(ctx, "imap.health", enum.CheckCritical, p.mailboxTags(), err.Error())
}

func (p *Poller) mailboxTags() []string {
	return []string{"mailbox:" + p.account.Address}
}

// sleep waits the backoff delay, reporting false when cancelled.
func (p *Poller) sleep(ctx context.Context, delay time.Duration) bool {
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
