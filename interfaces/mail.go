package interfaces

import (
	"context"
	"time"

	"github.com/replyforge/replyforge/internal/models"
)

// InboundConnection is one live, selected mailbox connection. Operations are
// serialized by the owning poller; implementations are not required to be
// safe for concurrent use.
type InboundConnection interface {
	SearchUnseen(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) (*models.InboundMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	// Close logs out and releases the connection. Best effort: errors are
	// ignored by callers.
	Close() error
}

// InboundDialer opens authenticated mailbox connections.
type InboundDialer interface {
	Connect(ctx context.Context, account models.MailboxAccount) (InboundConnection, error)
}

// OutboundMessage is a reply ready for delivery.
type OutboundMessage struct {
	From      string
	To        string
	Subject   string
	Body      string
	MessageID string
	InReplyTo string
}

// OutboundSender delivers replies over the outbound mail transport.
type OutboundSender interface {
	Send(ctx context.Context, message OutboundMessage, account models.MailboxAccount, timeout time.Duration) error
}
