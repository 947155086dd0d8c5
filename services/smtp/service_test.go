package smtp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/replyforge/interfaces"
)

func TestBuildMessage_IncludesThreadingHeaders(t *testing.T) {
	// Arrange
	message := &interfaces.OutboundMessage{
		From:      "support@acme.com",
		To:        "alice@x.com",
		Subject:   "Re: Order question",
		Body:      "Thanks, we are on it.",
		MessageID: "<1.abc@acme.com>",
		InReplyTo: "msg-1@x.com",
	}

	// Act
	wire := buildMessage(message).String()

	// Assert
	assert.Contains(t, wire, "From: support@acme.com\r\n")
	assert.Contains(t, wire, "To: alice@x.com\r\n")
	assert.Contains(t, wire, "Subject: Re: Order question\r\n")
	assert.Contains(t, wire, "Message-ID: <1.abc@acme.com>\r\n")
	assert.Contains(t, wire, "In-Reply-To: <msg-1@x.com>\r\n")
	assert.Contains(t, wire, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(wire, "Thanks, we are on it.\r\n"))

	headerEnd := strings.Index(wire, "\r\n\r\n")
	require.Positive(t, headerEnd)
}

func TestBuildMessage_OmitsInReplyToForNewThreads(t *testing.T) {
	// Arrange
	message := &interfaces.OutboundMessage{
		From:      "support@acme.com",
		To:        "alice@x.com",
		Subject:   "Hello",
		Body:      "hi",
		MessageID: "<1.abc@acme.com>",
	}

	// Act
	wire := buildMessage(message).String()

	// Assert
	assert.NotContains(t, wire, "In-Reply-To")
}

func TestValidateMessage(t *testing.T) {
	valid := func() *interfaces.OutboundMessage {
		return &interfaces.OutboundMessage{
			From:      "support@acme.com",
			To:        "alice@x.com",
			Subject:   "s",
			Body:      "b",
			MessageID: "<1@acme.com>",
		}
	}

	t.Run("valid message passes", func(t *testing.T) {
		assert.NoError(t, validateMessage(valid()))
	})

	t.Run("missing from is rejected", func(t *testing.T) {
		m := valid()
		m.From = ""
		assert.Error(t, validateMessage(m))
	})

	t.Run("missing recipient is rejected", func(t *testing.T) {
		m := valid()
		m.To = ""
		assert.Error(t, validateMessage(m))
	})

	t.Run("malformed recipient is rejected", func(t *testing.T) {
		m := valid()
		m.To = "not-an-address"
		assert.Error(t, validateMessage(m))
	})

	t.Run("empty body is rejected", func(t *testing.T) {
		m := valid()
		m.Body = ""
		assert.Error(t, validateMessage(m))
	})

	t.Run("missing message id is generated", func(t *testing.T) {
		m := valid()
		m.MessageID = ""
		require.NoError(t, validateMessage(m))
		assert.Contains(t, m.MessageID, "@acme.com>")
	})
}
