package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	mu         sync.Mutex
	events     []kafka.Event
	subscribed []string
	subErr     error
	closed     bool
}

func (p *fakePoller) SubscribeTopics(topics []string, _ kafka.RebalanceCb) error {
	p.subscribed = topics
	return p.subErr
}

func (p *fakePoller) Poll(int) kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		time.Sleep(time.Millisecond)
		return nil
	}
	ev := p.events[0]
	p.events = p.events[1:]
	return ev
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

type recordingHandler struct {
	mu   sync.Mutex
	got  []string
	fail string
}

func (h *recordingHandler) HandleMessage(_ context.Context, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, string(message))
	if string(message) == h.fail {
		return errors.New("bad message")
	}
	return nil
}

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.got...)
}

func TestNewKafkaConsumerSubscribes(t *testing.T) {
	p := &fakePoller{}
	c, err := NewKafkaConsumer(p, "store_notifications", &recordingHandler{})
	require.NoError(t, err)
	assert.Equal(t, []string{"store_notifications"}, p.subscribed)

	require.NoError(t, c.Close())
	assert.True(t, p.closed)

	_, err = NewKafkaConsumer(&fakePoller{subErr: errors.New("no broker")}, "t", &recordingHandler{})
	assert.Error(t, err)
}

func TestStartDeliversMessagesAndSkipsFailures(t *testing.T) {
	p := &fakePoller{events: []kafka.Event{
		&kafka.Message{Value: []byte("a")},
		&kafka.Message{Value: []byte("bad")},
		kafka.NewError(kafka.ErrTransport, "broker down", false),
		&kafka.Message{Value: []byte("b")},
	}}
	h := &recordingHandler{fail: "bad"}
	c, err := NewKafkaConsumer(p, "t", h)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(h.messages()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"a", "bad", "b"}, h.messages())
}

func TestStartStopsOnFatalError(t *testing.T) {
	p := &fakePoller{events: []kafka.Event{
		kafka.NewError(kafka.ErrFatal, "fenced", true),
		&kafka.Message{Value: []byte("never")},
	}}
	h := &recordingHandler{}
	c, err := NewKafkaConsumer(p, "t", h)
	require.NoError(t, err)

	err = c.Start(context.Background())
	var kerr kafka.Error
	require.True(t, errors.As(err, &kerr))
	assert.True(t, kerr.IsFatal())
	assert.Empty(t, h.messages())
}
