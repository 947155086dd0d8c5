package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/utils"
)

const (
	connectTimeout = 30 * time.Second
	commandTimeout = 30 * time.Second
	fetchTimeout   = 60 * time.Second
	logoutTimeout  = 5 * time.Second
)

// Dialer opens authenticated IMAP connections with INBOX selected.
type Dialer struct{}

func NewDialer() interfaces.InboundDialer {
	return &Dialer{}
}

// Connect dials the account's inbound endpoint, authenticates and selects
// INBOX. The returned connection is owned by a single poller.
func (d *Dialer) Connect(ctx context.Context, account models.MailboxAccount) (interfaces.InboundConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(account.ImapAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid imap endpoint %s", account.ImapAddr)
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: connectTimeout,
	}

	var c *client.Client
	if usePlaintext(account.ImapAddr) {
		c, err = client.DialWithDialer(dialer, account.ImapAddr)
	} else {
		tlsConfig := &tls.Config{
			ServerName: host,
		}
		c, err = client.DialWithDialerTLS(dialer, account.ImapAddr, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", account.ImapAddr, err)
	}

	c.Timeout = commandTimeout
	if err := c.Login(account.Address, account.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login as %s: %w", account.Address, err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	c.Timeout = 0

	return &connection{client: c, mailbox: account.Address}, nil
}

// usePlaintext treats the standard cleartext IMAP port as non-TLS; everything
// else gets an implicit TLS dial.
func usePlaintext(addr string) bool {
	return strings.HasSuffix(addr, ":143")
}

type connection struct {
	client  *client.Client
	mailbox string
}

func (c *connection) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.SeenFlag}

	c.client.Timeout = commandTimeout
	uids, err := c.client.UidSearch(criteria)
	c.client.Timeout = 0
	if err != nil {
		return nil, errors.Wrap(err, "error searching for unseen messages")
	}

	return uids, nil
}

func (c *connection) Fetch(ctx context.Context, uid uint32) (*models.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	// Peek keeps the \Seen flag untouched; marking seen is an explicit,
	// separate step after successful processing.
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{section.FetchItem(), goimap.FetchUid}

	messages := make(chan *goimap.Message, 1)
	done := make(chan error, 1)

	c.client.Timeout = fetchTimeout
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var raw *goimap.Message
	for msg := range messages {
		raw = msg
	}

	err := <-done
	c.client.Timeout = 0
	if err != nil {
		return nil, errors.Wrapf(err, "error fetching message %d", uid)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}

	literal := raw.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("message %d has no body", uid)
	}

	envelope, err := enmime.ReadEnvelope(literal)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing message %d", uid)
	}

	messageID := utils.NormalizeMessageID(envelope.GetHeader("Message-Id"))
	if messageID == "" {
		messageID = utils.NormalizeMessageID(utils.GenerateMessageID(utils.ExtractDomainFromEmail(c.mailbox)))
	}

	var references []string
	for _, ref := range strings.Fields(envelope.GetHeader("References")) {
		references = append(references, utils.NormalizeMessageID(ref))
	}

	return &models.InboundMessage{
		UID:        uid,
		MessageID:  messageID,
		InReplyTo:  utils.NormalizeMessageID(envelope.GetHeader("In-Reply-To")),
		References: references,
		From:       utils.FirstAddress(envelope.GetHeader("From")),
		Subject:    envelope.GetHeader("Subject"),
		Body:       envelope.Text,
	}, nil
}

func (c *connection) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	flags := []interface{}{goimap.SeenFlag}
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)

	c.client.Timeout = commandTimeout
	err := c.client.UidStore(seqSet, item, flags, nil)
	c.client.Timeout = 0
	if err != nil {
		return errors.Wrapf(err, "error marking message %d seen", uid)
	}

	return nil
}

// Close logs out with a short timeout. Errors are reported but callers treat
// the release as best effort.
func (c *connection) Close() error {
	c.client.Timeout = logoutTimeout
	return c.client.Logout()
}
