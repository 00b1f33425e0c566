package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func recordingHandler(mu *sync.Mutex, order *[]string, name string) HandlerFunc {
	return func(ctx context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		*order = append(*order, name)
		return nil
	}
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	id, err := bus.SubscribeFunc("test:event", func(context.Context, Message) error { return nil })
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, bus.SubscriptionCount("test:event"))
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus := NewBus()

	_, err := bus.Subscribe("test:event", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = bus.SubscribeFunc("test:event", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = bus.SubscribeFunc("", func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestBus_SubscriptionIDsAreUnique(t *testing.T) {
	bus := NewBus()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := bus.SubscribeFunc("test:event", func(context.Context, Message) error { return nil })
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate subscription id %s", id)
		seen[id] = true
	}
}

func TestBus_SubscriptionLimit(t *testing.T) {
	bus := NewBus(WithMaxSubscriptions(2))
	noop := HandlerFunc(func(context.Context, Message) error { return nil })

	first, err := bus.Subscribe("a", noop)
	require.NoError(t, err)
	_, err = bus.Subscribe("b", noop)
	require.NoError(t, err)

	_, err = bus.Subscribe("c", noop)
	assert.ErrorIs(t, err, ErrSubscriptionLimitExceeded)

	require.True(t, bus.Unsubscribe(first))
	_, err = bus.Subscribe("c", noop)
	assert.NoError(t, err)
}

func TestBus_PublishDeliversMessage(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = time.Now }()

	bus := NewBus()
	var got Message
	_, err := bus.SubscribeFunc("buffer:saved", func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "buffer:saved", "/tmp/a.sh", "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "buffer:saved", got.Type)
	assert.Equal(t, "/tmp/a.sh", got.Payload)
	assert.Equal(t, "editor", got.Source)
	assert.Equal(t, fixed, got.Timestamp)
}

func TestBus_PublishMessageCopiesMetadata(t *testing.T) {
	bus := NewBus()
	var got Message
	_, err := bus.SubscribeFunc("x", func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	})
	require.NoError(t, err)

	meta := map[string]any{"attempt": 1}
	n, err := bus.PublishMessage(context.Background(), Outgoing{Type: "x", Payload: 42, Metadata: meta})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	meta["attempt"] = 2
	assert.Equal(t, 1, got.Metadata["attempt"])
}

func TestBus_PublishEmptyType(t *testing.T) {
	bus := NewBus()
	_, err := bus.Publish(context.Background(), "", nil, "")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	n, err := bus.Publish(context.Background(), "nobody:listens", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, uint64(1), bus.Stats().MessagesPublished)
}

func TestBus_PriorityOrdering(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var order []string

	subs := []struct {
		name     string
		priority Priority
	}{
		{"low", PriorityLow},
		{"normal-1", PriorityNormal},
		{"critical", PriorityCritical},
		{"normal-2", PriorityNormal},
		{"high", PriorityHigh},
		{"normal-3", PriorityNormal},
	}
	for _, s := range subs {
		_, err := bus.Subscribe("ordered", recordingHandler(&mu, &order, s.name), WithPriority(s.priority))
		require.NoError(t, err)
	}

	n, err := bus.Publish(context.Background(), "ordered", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []string{"critical", "high", "normal-1", "normal-2", "normal-3", "low"}, order)
}

func TestBus_HigherPriorityEffectsVisible(t *testing.T) {
	bus := NewBus()
	var state []string

	_, err := bus.SubscribeFunc("seq", func(ctx context.Context, msg Message) error {
		assert.Equal(t, []string{"first"}, state)
		state = append(state, "second")
		return nil
	})
	require.NoError(t, err)
	_, err = bus.SubscribeFunc("seq", func(ctx context.Context, msg Message) error {
		time.Sleep(10 * time.Millisecond)
		state = append(state, "first")
		return nil
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "seq", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, state)
}

func TestBus_Once(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32

	_, err := bus.Once("once", HandlerFunc(func(context.Context, Message) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "once", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = bus.Publish(context.Background(), "once", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, bus.SubscriptionCount("once"))
}

func TestBus_OnceRemovedEvenWhenHandlerFails(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	_, err := bus.Once("once", HandlerFunc(func(context.Context, Message) error {
		calls.Add(1)
		return errors.New("nope")
	}))
	require.NoError(t, err)

	_, _ = bus.Publish(context.Background(), "once", nil, "")
	_, _ = bus.Publish(context.Background(), "once", nil, "")
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_OnceFilteredOutStaysSubscribed(t *testing.T) {
	bus := NewBus()
	var got []any
	_, err := bus.Once("once", HandlerFunc(func(ctx context.Context, msg Message) error {
		got = append(got, msg.Payload)
		return nil
	}), WithFilter(func(msg Message) bool { return msg.Payload == "yes" }))
	require.NoError(t, err)

	_, _ = bus.Publish(context.Background(), "once", "no", "")
	assert.Equal(t, 1, bus.SubscriptionCount("once"))

	_, _ = bus.Publish(context.Background(), "once", "yes", "")
	_, _ = bus.Publish(context.Background(), "once", "yes", "")
	assert.Equal(t, []any{"yes"}, got)
	assert.Equal(t, 0, bus.SubscriptionCount("once"))
}

func TestBus_OnceConcurrentPublishDeliversOnce(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	_, err := bus.Once("once", HandlerFunc(func(context.Context, Message) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bus.Publish(context.Background(), "once", nil, "")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_Filter(t *testing.T) {
	bus := NewBus()
	var got []any
	_, err := bus.SubscribeFunc("n", func(ctx context.Context, msg Message) error {
		got = append(got, msg.Payload)
		return nil
	}, WithFilter(func(msg Message) bool {
		v, _ := PayloadAs[int](msg)
		return v%2 == 0
	}))
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		_, err := bus.Publish(context.Background(), "n", i, "")
		require.NoError(t, err)
	}
	assert.Equal(t, []any{2, 4}, got)
}

func TestBus_PanickingFilterSkipsOnlyItsSubscription(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bus := NewBus(WithLogger(zap.New(core)))

	var delivered []string
	_, err := bus.SubscribeFunc("f", func(context.Context, Message) error {
		delivered = append(delivered, "bad-filter")
		return nil
	}, WithFilter(func(Message) bool { panic("filter bug") }), WithPriority(PriorityHigh))
	require.NoError(t, err)
	_, err = bus.SubscribeFunc("f", func(context.Context, Message) error {
		delivered = append(delivered, "good")
		return nil
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "f", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"good"}, delivered)
	assert.Equal(t, 1, logs.FilterMessage("subscription filter panicked").Len())
	assert.Equal(t, uint64(1), bus.Stats().FilterPanics)
}

func TestBus_FailingHandlerDoesNotStopDelivery(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bus := NewBus(WithLogger(zap.New(core)))

	var mu sync.Mutex
	var order []string
	_, err := bus.SubscribeFunc("e", func(context.Context, Message) error {
		return errors.New("handler broke")
	}, WithPriority(PriorityCritical))
	require.NoError(t, err)
	_, err = bus.SubscribeFunc("e", func(context.Context, Message) error {
		panic("handler exploded")
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)
	_, err = bus.Subscribe("e", recordingHandler(&mu, &order, "survivor"))
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "e", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"survivor"}, order)
	assert.Equal(t, 2, logs.FilterMessage("message handler failed").Len())

	stats := bus.Stats()
	assert.Equal(t, uint64(3), stats.HandlersExecuted)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.MessagesDelivered)
}

func TestBus_ErrorHandlerReceivesFailure(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")

	var gotErr error
	var gotMsg Message
	_, err := bus.SubscribeFunc("e", func(context.Context, Message) error {
		return boom
	}, WithErrorHandler(func(err error, msg Message) {
		gotErr = err
		gotMsg = msg
	}))
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "e", "payload", "src")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.ErrorIs(t, gotErr, boom)
	var herr *HandlerError
	require.ErrorAs(t, gotErr, &herr)
	assert.Equal(t, "e", herr.Type)
	assert.Equal(t, "payload", gotMsg.Payload)
}

func TestBus_ErrorHandlerPanicIsContained(t *testing.T) {
	bus := NewBus()
	var reached bool
	_, err := bus.SubscribeFunc("e", func(context.Context, Message) error {
		return errors.New("x")
	}, WithErrorHandler(func(error, Message) { panic("error handler bug") }), WithPriority(PriorityHigh))
	require.NoError(t, err)
	_, err = bus.SubscribeFunc("e", func(context.Context, Message) error {
		reached = true
		return nil
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "e", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, reached)
}

func TestBus_HandlerTimeout(t *testing.T) {
	bus := NewBus(WithHandlerTimeout(20 * time.Millisecond))

	release := make(chan struct{})
	defer close(release)

	var timeoutErr error
	_, err := bus.SubscribeFunc("slow", func(ctx context.Context, msg Message) error {
		<-release
		return nil
	}, WithErrorHandler(func(err error, msg Message) { timeoutErr = err }), WithPriority(PriorityHigh))
	require.NoError(t, err)

	var fastCalled bool
	_, err = bus.SubscribeFunc("slow", func(context.Context, Message) error {
		fastCalled = true
		return nil
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "slow", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, fastCalled)
	assert.ErrorIs(t, timeoutErr, ErrHandlerTimeout)
	assert.Equal(t, uint64(1), bus.Stats().HandlerTimeouts)
}

func TestBus_HandlerTimeoutCancelsContext(t *testing.T) {
	bus := NewBus(WithHandlerTimeout(10 * time.Millisecond))
	cancelled := make(chan struct{})
	_, err := bus.SubscribeFunc("slow", func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "slow", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestBus_CancelledContextStopsDelivery(t *testing.T) {
	bus := NewBus()
	var calls int
	_, err := bus.SubscribeFunc("c", func(context.Context, Message) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := bus.Publish(ctx, "c", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, calls)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	var calls int
	id, err := bus.SubscribeFunc("u", func(context.Context, Message) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))

	_, _ = bus.Publish(context.Background(), "u", nil, "")
	assert.Equal(t, 0, calls)
}

func TestBus_UnsubscribeDuringDelivery(t *testing.T) {
	bus := NewBus()
	var secondID string
	var secondCalled bool

	_, err := bus.SubscribeFunc("u", func(context.Context, Message) error {
		bus.Unsubscribe(secondID)
		return nil
	}, WithPriority(PriorityHigh))
	require.NoError(t, err)
	secondID, err = bus.SubscribeFunc("u", func(context.Context, Message) error {
		secondCalled = true
		return nil
	})
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "u", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, secondCalled)
}

func TestBus_SubscribeDuringDelivery(t *testing.T) {
	bus := NewBus()
	var lateCalls int
	_, err := bus.SubscribeFunc("s", func(context.Context, Message) error {
		_, err := bus.SubscribeFunc("s", func(context.Context, Message) error {
			lateCalls++
			return nil
		})
		return err
	}, WithOnce())
	require.NoError(t, err)

	n, err := bus.Publish(context.Background(), "s", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, lateCalls)

	n, err = bus.Publish(context.Background(), "s", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, lateCalls)
}

func TestBus_UnsubscribeAllAndClear(t *testing.T) {
	bus := NewBus()
	noop := HandlerFunc(func(context.Context, Message) error { return nil })
	for i := 0; i < 3; i++ {
		_, err := bus.Subscribe("a", noop)
		require.NoError(t, err)
	}
	_, err := bus.Subscribe("b", noop)
	require.NoError(t, err)

	assert.Equal(t, 3, bus.UnsubscribeAll("a"))
	assert.Equal(t, 0, bus.UnsubscribeAll("a"))
	assert.Equal(t, 1, bus.Stats().ActiveSubscriptions)

	bus.Clear()
	assert.Equal(t, 0, bus.Stats().ActiveSubscriptions)
	assert.Equal(t, 0, bus.SubscriptionCount("b"))
}

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityCritical, "critical"},
		{PriorityHigh, "high"},
		{PriorityNormal, "normal"},
		{PriorityLow, "low"},
		{Priority(-1), "low"},
		{Priority(150), "high"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.String(), "Priority(%d).String()", tt.p)
	}
}
