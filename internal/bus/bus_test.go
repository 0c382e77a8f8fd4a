package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/domain"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := New()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(domain.Event{Type: domain.EventOutput, TaskID: "t1", Output: "hello"})

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "t1", ev.TaskID)
			assert.Equal(t, "hello", ev.Output)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()

	cancel()

	_, open := <-ch
	assert.False(t, open)

	cancel() // second call is a no-op

	// Publishing after unsubscribe must not panic.
	b.Publish(domain.Event{Type: domain.EventOutput})
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		b.Publish(domain.Event{Type: domain.EventOutput, TaskID: "t1", Output: string(rune('a' + i))})
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-ch:
			require.Equal(t, string(rune('a'+i)), ev.Output)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestBus_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(domain.Event{Type: domain.EventOutput})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
