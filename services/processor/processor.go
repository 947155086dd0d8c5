package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
	"github.com/replyforge/replyforge/internal/utils"
	"github.com/replyforge/replyforge/services/events"
)

const (
	sendAttempts   = 2
	sendRetryDelay = time.Second
	sendTimeout    = 30 * time.Second
)

// ReplyEventPublisher emits reply-delivered events. Nil-able: when no broker
// is configured the processor simply skips publishing.
type ReplyEventPublisher interface {
	PublishReplyDelivered(ctx context.Context, event events.ReplyDelivered) error
}

// Processor handles one inbound message end to end: thread correlation,
// persistence, reply generation and delivery. One Processor instance serves
// one tenant; pollers of that tenant share it, and every method is safe for
// concurrent use because all state lives in the store.
type Processor struct {
	tenantID  string
	tenants   interfaces.TenantRepository
	messages  interfaces.MessageRepository
	generator interfaces.GenerationService
	sender    interfaces.OutboundSender
	metrics   interfaces.MetricsSink
	publisher ReplyEventPublisher
	log       logger.Logger
}

func NewProcessor(
	tenantID string,
	tenants interfaces.TenantRepository,
	messages interfaces.MessageRepository,
	generator interfaces.GenerationService,
	sender interfaces.OutboundSender,
	metrics interfaces.MetricsSink,
	publisher ReplyEventPublisher,
	log logger.Logger,
) *Processor {
	return &Processor{
		tenantID:  tenantID,
		tenants:   tenants,
		messages:  messages,
		generator: generator,
		sender:    sender,
		metrics:   metrics,
		publisher: publisher,
		log:       log,
	}
}

// Process runs the full pipeline for one inbound message. A nil return means
// the message is handled and may be marked seen, including terminal
// generation outcomes like filtered or invalid provider output. A non-nil
// return is a transient failure: the caller must leave the message unseen so
// it is retried on the next poll cycle.
func (p *Processor) Process(ctx context.Context, account models.MailboxAccount, inbound *models.InboundMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.Process")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagTenant(span, p.tenantID)
	tracing.TagMailbox(span, account.Address)

	threadID, history, err := p.correlateThread(ctx, inbound)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagThread(span, threadID)

	log := p.log.With(logger.MailFields(account.Address, threadID)...)

	incoming := &models.Message{
		ThreadID:   threadID,
		TenantID:   p.tenantID,
		Mailbox:    account.Address,
		Direction:  enum.MessageIncoming,
		Sender:     inbound.From,
		Subject:    inbound.Subject,
		Body:       inbound.Body,
		References: pq.StringArray(inbound.References),
	}
	if err := p.messages.Append(ctx, incoming); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to persist incoming message")
	}

	// The tenant record is re-read per message so credential or
	// instruction changes apply immediately. A vanished tenant maps to
	// the user_not_found outcome rather than a transient error: retrying
	// cannot bring the record back.
	tenant, err := p.tenants.GetByID(ctx, p.tenantID)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "tenant lookup failed")
	}

	result := p.generate(ctx, tenant, inbound, history)
	span.LogKV("generation.outcome", result.Outcome.String())

	p.metrics.Increment(ctx, "gemini.outcome", []string{
		"status:" + result.Outcome.String(),
		"mailbox:" + account.Address,
		"thread:" + threadID,
	})
	if result.PromptChars > 0 {
		p.metrics.Histogram(ctx, "gemini.prompt.chars", float64(result.PromptChars), nil)
	}
	if result.ResponseChars > 0 {
		p.metrics.Histogram(ctx, "gemini.response.chars", float64(result.ResponseChars), nil)
	}

	if result.Outcome != enum.OutcomeSuccess {
		p.metrics.Increment(ctx, "errors.by_type", []string{
			"type:" + result.Outcome.String(),
			"mailbox:" + account.Address,
		})
		log.Warnf("no reply sent for message %s: %s", inbound.MessageID, result.Outcome)
		return nil
	}

	return p.deliverReply(ctx, log, account, inbound, threadID, result.Body)
}

// correlateThread resolves the thread this message belongs to. A message
// whose In-Reply-To matches a stored message joins that thread; anything
// else, including replies to messages we never saw, starts a new thread
// rooted at the message's own id. History is returned only for joined
// threads.
func (p *Processor) correlateThread(ctx context.Context, inbound *models.InboundMessage) (string, []*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.correlateThread")
	defer span.Finish()

	reference := utils.NormalizeMessageID(inbound.InReplyTo)
	if reference == "" {
		return inbound.MessageID, nil, nil
	}

	threadID, err := p.messages.FindThreadByReference(ctx, reference)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", nil, errors.Wrap(err, "thread lookup failed")
	}
	if threadID == "" {
		return inbound.MessageID, nil, nil
	}

	history, err := p.messages.ListThreadMessages(ctx, threadID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", nil, errors.Wrap(err, "failed to load thread history")
	}
	return threadID, history, nil
}

func (p *Processor) generate(ctx context.Context, tenant *models.Tenant, inbound *models.InboundMessage, history []*models.Message) interfaces.GenerationResult {
	if tenant == nil {
		return interfaces.GenerationResult{Outcome: enum.OutcomeUserNotFound}
	}

	return p.generator.Generate(ctx, interfaces.GenerationRequest{
		Text:         inbound.Body,
		Conversation: history,
		Instructions: tenant.Instructions,
		APIKey:       tenant.GenerationAPIKey,
	})
}

func (p *Processor) deliverReply(ctx context.Context, log logger.Logger, account models.MailboxAccount, inbound *models.InboundMessage, threadID, body string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.deliverReply")
	defer span.Finish()
	tracing.TagMailbox(span, account.Address)
	tracing.TagThread(span, threadID)

	replyID := utils.GenerateMessageID(utils.ExtractDomainFromEmail(account.Address))
	subject := fmt.Sprintf("Re: %s", inbound.Subject)

	outgoing := &models.Message{
		ThreadID:  threadID,
		TenantID:  p.tenantID,
		Mailbox:   account.Address,
		Direction: enum.MessageOutgoing,
		Sender:    account.Address,
		Subject:   subject,
		Body:      body,
	}
	if err := p.messages.Append(ctx, outgoing); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to persist outgoing message")
	}

	message := interfaces.OutboundMessage{
		From:      account.Address,
		To:        inbound.From,
		Subject:   subject,
		Body:      body,
		MessageID: replyID,
		InReplyTo: inbound.MessageID,
	}

	err := utils.Retry(ctx, sendAttempts, sendRetryDelay, func(attempt int) error {
		sendErr := p.sender.Send(ctx, message, account, sendTimeout)
		if sendErr != nil {
			log.Warnf("delivery attempt %d to %s failed: %v", attempt, inbound.From, sendErr)
			p.metrics.Increment(ctx, "errors.total", []string{"component:smtp"})
		}
		return sendErr
	})
	if err != nil {
		tracing.TraceErr(span, err)
		p.metrics.ServiceCheck(ctx, "smtp.health", enum.CheckCritical, []string{"mailbox:" + account.Address},
			fmt.Sprintf("delivery failed: %v", err))
		log.Errorf("reply delivery to %s failed after %d attempts: %v", inbound.From, sendAttempts, err)
		return errors.Wrap(err, "reply delivery failed")
	}

	p.metrics.Increment(ctx, "smtp.sent", []string{
		"mailbox:" + account.Address,
		"thread:" + threadID,
	})
	p.metrics.ServiceCheck(ctx, "smtp.health", enum.CheckOK, []string{"mailbox:" + account.Address}, "")
	log.Infof("reply %s delivered to %s", replyID, inbound.From)

	if p.publisher != nil {
		event := events.ReplyDelivered{
			TenantID:   p.tenantID,
			Mailbox:    account.Address,
			ThreadID:   threadID,
			MessageID:  replyID,
			Recipient:  inbound.From,
			OccurredAt: utils.Now().Format(time.RFC3339),
		}
		if err := p.publisher.PublishReplyDelivered(ctx, event); err != nil {
			// Event delivery is best effort; the reply is already out.
			log.Warnf("failed to publish reply-delivered event: %v", err)
		}
	}

	return nil
}
