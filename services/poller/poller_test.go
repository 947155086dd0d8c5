package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/replyforge/interfaces"
	"github.com/replyforge/replyforge/internal/enum"
	"github.com/replyforge/replyforge/internal/logger"
	"github.com/replyforge/replyforge/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeConnection struct {
	mu       sync.Mutex
	unseen   []uint32
	messages map[uint32]*models.InboundMessage
	seen     []uint32
	closed   bool
}

func (f *fakeConnection) SearchUnseen(ctx context.Context) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.unseen))
	copy(out, f.unseen)
	return out, nil
}

func (f *fakeConnection) Fetch(ctx context.Context, uid uint32) (*models.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[uid]
	if !ok {
		return nil, errors.New("no such message")
	}
	return msg, nil
}

func (f *fakeConnection) MarkSeen(ctx context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, uid)
	remaining := f.unseen[:0]
	for _, u := range f.unseen {
		if u != uid {
			remaining = append(remaining, u)
		}
	}
	f.unseen = remaining
	return nil
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnection) seenUIDs() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.seen))
	copy(out, f.seen)
	return out
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConnection
	dials    int
	dialErrs []error
}

func (f *fakeDialer) Connect(ctx context.Context, account models.MailboxAccount) (interfaces.InboundConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		return nil, err
	}
	if len(f.conns) == 0 {
		return nil, errors.New("no connection scripted")
	}
	conn := f.conns[0]
	if len(f.conns) > 1 {
		f.conns = f.conns[1:]
	}
	return conn, nil
}

type scriptedHandler struct {
	mu   sync.Mutex
	errs map[string][]error
	seen []string
}

func (h *scriptedHandler) Process(ctx context.Context, account models.MailboxAccount, inbound *models.InboundMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, inbound.MessageID)
	if queue := h.errs[inbound.MessageID]; len(queue) > 0 {
		err := queue[0]
		h.errs[inbound.MessageID] = queue[1:]
		return err
	}
	return nil
}

func (h *scriptedHandler) processed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.seen))
	copy(out, h.seen)
	return out
}

type nopSink struct{}

func (nopSink) Gauge(ctx context.Context, name string, value float64, tags []string)    {}
func (nopSink) Count(ctx context.Context, name string, value int64, tags []string)      {}
func (nopSink) Increment(ctx context.Context, name string, tags []string)               {}
func (nopSink) Histogram(ctx context.Context, name string, value float64, tags []string) {}
func (nopSink) ServiceCheck(ctx context.Context, name string, status enum.CheckStatus, tags []string, message string) {
}

func testAccount() models.MailboxAccount {
	return models.MailboxAccount{
		Address:  "support@acme.com",
		ImapAddr: "imap.acme.com:993",
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPoller_ProcessesAndMarksUnseenMessages(t *testing.T) {
	// Arrange
	conn := &fakeConnection{
		unseen: []uint32{1, 2},
		messages: map[uint32]*models.InboundMessage{
			1: {UID: 1, MessageID: "m1"},
			2: {UID: 2, MessageID: "m2"},
		},
	}
	dialer := &fakeDialer{conns: []*fakeConnection{conn}}
	handler := &scriptedHandler{errs: map[string][]error{}}
	p := NewPoller(testAccount(), dialer, handler, nopSink{}, getLogger(), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Act
	waitFor(t, 2*time.Second, func() bool { return len(conn.seenUIDs()) == 2 })
	cancel()
	<-done

	// Assert
	assert.ElementsMatch(t, []uint32{1, 2}, conn.seenUIDs())
	assert.ElementsMatch(t, []string{"m1", "m2"}, handler.processed())
	assert.True(t, conn.closed)
}

func TestPoller_FailedMessageStaysUnseenAndIsRetried(t *testing.T) {
	// Arrange
	buildConn := func() *fakeConnection {
		return &fakeConnection{
			unseen: []uint32{5},
			messages: map[uint32]*models.InboundMessage{
				5: {UID: 5, MessageID: "m5"},
			},
		}
	}
	first := buildConn()
	second := buildConn()
	dialer := &fakeDialer{conns: []*fakeConnection{first, second}}
	handler := &scriptedHandler{errs: map[string][]error{
		"m5": {errors.New("db unavailable")},
	}}
	p := NewPoller(testAccount(), dialer, handler, nopSink{}, getLogger(), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Act: the first attempt fails, the poller reconnects after backoff
	// and the message is handled on the second connection.
	waitFor(t, 15*time.Second, func() bool { return len(second.seenUIDs()) == 1 })
	cancel()
	<-done

	// Assert
	assert.Empty(t, first.seenUIDs())
	assert.True(t, first.closed)
	assert.Equal(t, []uint32{5}, second.seenUIDs())
	require.GreaterOrEqual(t, len(handler.processed()), 2)
}

func TestPoller_WaitsOneIntervalBeforeFirstPoll(t *testing.T) {
	// Arrange
	conn := &fakeConnection{
		unseen:   []uint32{3},
		messages: map[uint32]*models.InboundMessage{3: {UID: 3, MessageID: "m3"}},
	}
	dialer := &fakeDialer{conns: []*fakeConnection{conn}}
	handler := &scriptedHandler{errs: map[string][]error{}}
	p := NewPoller(testAccount(), dialer, handler, nopSink{}, getLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Act
	waitFor(t, time.Second, func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()
		return dialer.dials == 1
	})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	// Assert: the unseen message is untouched because the first cycle only
	// runs after a full interval.
	assert.Empty(t, conn.seenUIDs())
	assert.Empty(t, handler.processed())
}

func TestPoller_StopsPromptlyOnCancel(t *testing.T) {
	// Arrange
	conn := &fakeConnection{unseen: nil, messages: map[uint32]*models.InboundMessage{}}
	dialer := &fakeDialer{conns: []*fakeConnection{conn}}
	handler := &scriptedHandler{errs: map[string][]error{}}
	p := NewPoller(testAccount(), dialer, handler, nopSink{}, getLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	waitFor(t, time.Second, func() bool {
		dialer.mu.Lock()
		defer dialer.mu.Unlock()
		return dialer.dials == 1
	})

	// Act
	cancel()

	// Assert
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
	assert.True(t, conn.closed)
}

func TestPoller_ReconnectsAfterDialFailure(t *testing.T) {
	// Arrange
	conn := &fakeConnection{
		unseen:   []uint32{9},
		messages: map[uint32]*models.InboundMessage{9: {UID: 9, MessageID: "m9"}},
	}
	dialer := &fakeDialer{
		dialErrs: []error{errors.New("connection refused")},
		conns:    []*fakeConnection{conn},
	}
	handler := &scriptedHandler{errs: map[string][]error{}}
	p := NewPoller(testAccount(), dialer, handler, nopSink{}, getLogger(), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Act
	waitFor(t, 15*time.Second, func() bool { return len(conn.seenUIDs()) == 1 })
	cancel()
	<-done

	// Assert
	dialer.mu.Lock()
	dials := dialer.dials
	dialer.mu.Unlock()
	assert.GreaterOrEqual(t, dials, 2)
	assert.Equal(t, []string{"m9"}, handler.processed())
}
