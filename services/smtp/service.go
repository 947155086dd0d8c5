package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/models"
	"github.com/replyforge/replyforge/internal/tracing"
	"github.com/replyforge/replyforge/internal/utils"
)

// Sender delivers replies over SMTP with STARTTLS.
type Sender struct{}

func NewSender() interfaces.OutboundSender {
	return &Sender{}
}

// Send delivers one reply through the account's outbound endpoint. The
// timeout bounds the whole exchange including dial and TLS negotiation.
func (s *Sender) Send(ctx context.Context, message interfaces.OutboundMessage, account models.MailboxAccount, timeout time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Sender.Send")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagMailbox(span, account.Address)

	if err := validateMessage(&message); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	host, _, err := net.SplitHostPort(account.SmtpAddr)
	if err != nil {
		err = errors.Wrapf(err, "invalid smtp endpoint %s", account.SmtpAddr)
		tracing.TraceErr(span, err)
		return err
	}

	buffer := buildMessage(&message)
	auth := smtp.PlainAuth("", account.Address, account.Password, host)

	err = s.sendWithSTARTTLS(ctx, account.SmtpAddr, host, auth, message.From, message.To, buffer, timeout)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func validateMessage(message *interfaces.OutboundMessage) error {
	if message.From == "" {
		return fmt.Errorf("from address is required")
	}
	if message.To == "" {
		return fmt.Errorf("at least one recipient is required")
	}

	validation := mailvalidate.ValidateEmailSyntax(message.To)
	if !validation.IsValid {
		return fmt.Errorf("recipient address %s is not valid", message.To)
	}

	if message.Body == "" {
		return fmt.Errorf("message must have text content")
	}
	if message.MessageID == "" {
		message.MessageID = utils.GenerateMessageID(utils.ExtractDomainFromEmail(message.From))
	}

	return nil
}

// buildMessage renders the RFC 5322 wire form. Replies carry In-Reply-To so
// conventional mail clients keep the conversation threaded.
func buildMessage(message *interfaces.OutboundMessage) *bytes.Buffer {
	buffer := bytes.NewBuffer(nil)

	fmt.Fprintf(buffer, "From: %s\r\n", message.From)
	fmt.Fprintf(buffer, "To: %s\r\n", message.To)
	fmt.Fprintf(buffer, "Subject: %s\r\n", message.Subject)
	fmt.Fprintf(buffer, "Message-ID: %s\r\n", message.MessageID)
	if message.InReplyTo != "" {
		fmt.Fprintf(buffer, "In-Reply-To: <%s>\r\n", message.InReplyTo)
	}
	fmt.Fprintf(buffer, "Date: %s\r\n", utils.Now().Format(time.RFC1123Z))
	buffer.WriteString("MIME-Version: 1.0\r\n")
	buffer.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buffer.WriteString("\r\n")
	buffer.WriteString(message.Body)
	buffer.WriteString("\r\n")

	return buffer
}

func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr, host string, auth smtp.Auth, from, to string, buffer *bytes.Buffer, timeout time.Duration) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Sender.sendWithSTARTTLS")
	defer span.Finish()
	span.LogKV("smtp_addr", addr)
	span.LogKV("from_address", from)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Rcpt(to); err != nil {
		err = fmt.Errorf("SMTP RCPT command failed for %s: %w", to, err)
		tracing.TraceErr(span, err)
		return err
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
