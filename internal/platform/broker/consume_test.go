package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodDeliveryWs/internal/modules/realtime/application/port"
)

// fakeReader serves queued records, then blocks until ctx ends.
type fakeReader struct {
	mu          sync.Mutex
	fetchErrors []error
	queue       []kafka.Message
	committed   []int64
	closed      bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrors) > 0 {
		err := r.fetchErrors[0]
		r.fetchErrors = r.fetchErrors[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
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

func records(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{Topic: "orders.created", Offset: int64(i), Value: []byte(fmt.Sprintf(`{"orderId":%d}`, i))}
	}
	return out
}

// runConsumer starts Consume and returns a stop func that cancels it and waits for its result.
func runConsumer(t *testing.T, r *fakeReader, handler func(context.Context, *port.BrokerMessage) error) func() error {
	t.Helper()
	c := &KafkaConsumer{reader: r, event: "order.created", retryDelay: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
			return nil
		}
	}
}

func TestConsume_CommitsAfterHandlerSucceeds(t *testing.T) {
	t.Parallel()

	r := &fakeReader{queue: records(2)}
	var mu sync.Mutex
	var seen []int64
	stop := runConsumer(t, r, func(_ context.Context, msg *port.BrokerMessage) error {
		mu.Lock()
		seen = append(seen, msg.Offset)
		mu.Unlock()
		return nil
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []int64{0, 1}, r.commits())
	mu.Lock()
	assert.Equal(t, []int64{0, 1}, seen)
	mu.Unlock()
	r.mu.Lock()
	assert.True(t, r.closed)
	r.mu.Unlock()
}

func TestConsume_MalformedRecordIsCommitted(t *testing.T) {
	t.Parallel()

	r := &fakeReader{queue: records(1)}
	stop := runConsumer(t, r, func(context.Context, *port.BrokerMessage) error {
		return fmt.Errorf("%w: missing restaurantId", port.ErrMalformedEvent)
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
}

func TestConsume_FailedHandlerRetriesSameRecordBeforeCommit(t *testing.T) {
	t.Parallel()

	r := &fakeReader{queue: records(2)}
	var mu sync.Mutex
	attempts := map[int64]int{}
	stop := runConsumer(t, r, func(_ context.Context, msg *port.BrokerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Offset]++
		if msg.Offset == 0 && attempts[0] < 3 {
			if len(r.commits()) != 0 {
				t.Errorf("record committed before the handler succeeded")
			}
			return errors.New("store down")
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []int64{0, 1}, r.commits())
	mu.Lock()
	assert.Equal(t, 3, attempts[0])
	assert.Equal(t, 1, attempts[1])
	mu.Unlock()
}

func TestConsume_StopsWithoutCommitWhileHandlerKeepsFailing(t *testing.T) {
	t.Parallel()

	r := &fakeReader{queue: records(1)}
	calls := make(chan struct{}, 100)
	stop := runConsumer(t, r, func(context.Context, *port.BrokerMessage) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return errors.New("store down")
	})

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("handler was not retried")
		}
	}
	require.NoError(t, stop())
	assert.Empty(t, r.commits())
}

func TestConsume_RetriesAfterReadError(t *testing.T) {
	t.Parallel()

	r := &fakeReader{fetchErrors: []error{errors.New("broker unreachable")}, queue: records(1)}
	stop := runConsumer(t, r, func(context.Context, *port.BrokerMessage) error { return nil })

	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
}
