package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	err      error
	fails    int // leading writes that fail before err applies
	attempts int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.fails > 0 {
		w.fails--
		return errors.New("broker down")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) tries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func eventMessage(t *testing.T, offset int64, key string) kafka.Message {
	t.Helper()
	ev, err := NewEvent("checkout.reconcile", key, "storefront", map[string]string{"payment_id": key})
	require.NoError(t, err)
	raw, err := ev.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "storefront.checkout.reconcile", Offset: offset, Key: []byte(key), Value: raw}
}

func runConsumer(t *testing.T, c *Consumer, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func testConsumer(reader *fakeReader, dlq *fakeWriter, h Handler) *Consumer {
	c := &Consumer{
		reader:  reader,
		cfg:     ConsumerConfig{Topic: "storefront.checkout.reconcile", GroupID: "storefront-reconciler", MaxRetries: 2, RetryDelay: time.Millisecond}.withDefaults(),
		handler: h,
		logger:  testLogger(),
	}
	if dlq != nil {
		c.dlq = &DLQProducer{writer: dlq, logger: testLogger()}
	}
	return c
}

func TestConsumer_CommitsAfterSuccess(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 1, "pay_a"), eventMessage(t, 2, "pay_b")}}
	var mu sync.Mutex
	var keys []string
	c := testConsumer(reader, nil, func(_ context.Context, e *Event) error {
		mu.Lock()
		keys = append(keys, e.Key)
		mu.Unlock()
		return nil
	})

	runConsumer(t, c, func() bool { return len(reader.commits()) == 2 })
	assert.Equal(t, []string{"pay_a", "pay_b"}, keys)
	assert.True(t, reader.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 7, "pay_x")}}
	dlq := &fakeWriter{}
	attempts := 0
	c := testConsumer(reader, dlq, func(context.Context, *Event) error {
		attempts++
		return errors.New("platform unavailable")
	})

	runConsumer(t, c, func() bool { return len(reader.commits()) == 1 })
	assert.Equal(t, 2, attempts)

	sent := dlq.written()
	require.Len(t, sent, 1)
	assert.Equal(t, "storefront.checkout.reconcile.dlq", sent[0].Topic)
	assert.Equal(t, []byte("pay_x"), sent[0].Key)

	headers := map[string]string{}
	for _, h := range sent[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "7", headers["dlq.original_offset"])
	assert.Equal(t, "storefront-reconciler", headers["dlq.consumer_group"])
	assert.Equal(t, "platform unavailable", headers["dlq.error"])
}

func TestConsumer_DLQFailureIsRetriedBeforeCommit(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 3, "pay_y"), eventMessage(t, 4, "pay_z")}}
	dlq := &fakeWriter{fails: 2}
	var mu sync.Mutex
	var processed []string
	c := testConsumer(reader, dlq, func(_ context.Context, e *Event) error {
		mu.Lock()
		processed = append(processed, e.Key)
		mu.Unlock()
		if e.Key == "pay_y" {
			return errors.New("boom")
		}
		return nil
	})

	runConsumer(t, c, func() bool { return len(reader.commits()) == 2 })
	assert.Equal(t, []int64{3, 4}, reader.commits())
	require.Len(t, dlq.written(), 1)
	assert.Equal(t, []byte("pay_y"), dlq.written()[0].Key)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pay_y", "pay_y", "pay_z"}, processed)
}

func TestConsumer_DLQOutageHoldsOffset(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, 3, "pay_y"), eventMessage(t, 4, "pay_z")}}
	dlq := &fakeWriter{err: errors.New("broker down")}
	var calls atomic.Int32
	c := testConsumer(reader, dlq, func(context.Context, *Event) error {
		calls.Add(1)
		return errors.New("boom")
	})

	runConsumer(t, c, func() bool { return dlq.tries() >= 3 })

	assert.Empty(t, reader.commits())
	assert.Equal(t, int32(2), calls.Load(), "pay_z is not fetched while pay_y is unparked")
}

func TestConsumer_GarbageGoesToDLQ(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "storefront.checkout.reconcile", Offset: 9, Value: []byte("{")}}}
	dlq := &fakeWriter{}
	c := testConsumer(reader, dlq, func(context.Context, *Event) error {
		t.Error("handler must not run for an undecodable message")
		return nil
	})

	runConsumer(t, c, func() bool { return len(reader.commits()) == 1 })
	assert.Len(t, dlq.written(), 1)
}

func TestProducer_PublishSetsKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	ev, err := NewEvent("order.created", "gid://shop/Order/5", "storefront", nil)
	require.NoError(t, err)
	ev.WithCorrelationID("corr-5")

	require.NoError(t, p.Publish(context.Background(), Topic("order", "created"), ev))

	sent := w.written()
	require.Len(t, sent, 1)
	assert.Equal(t, "storefront.order.created", sent[0].Topic)
	assert.Equal(t, []byte("gid://shop/Order/5"), sent[0].Key)

	carrier := &HeaderCarrier{headers: &sent[0].Headers}
	assert.Equal(t, "order.created", carrier.Get("event_type"))
	assert.Equal(t, "corr-5", carrier.Get("correlation_id"))
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}, logger: testLogger()}
	ev, _ := NewEvent("order.created", "k", "storefront", nil)
	err := p.Publish(context.Background(), "storefront.order.created", ev)
	assert.ErrorContains(t, err, "leader not available")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "traceparent", Value: []byte("old")}}
	c := &HeaderCarrier{headers: &headers}

	c.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	c.Set("tracestate", "vendor=1")

	assert.Len(t, headers, 2)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", c.Get("traceparent"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}
