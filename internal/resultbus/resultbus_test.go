package resultbus

import (
	"errors"
	"testing"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/aggregate"
)

func result(seq uint64) aggregate.FrameResult {
	return aggregate.FrameResult{SequenceID: seq, EmittedAt: time.Now()}
}

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan aggregate.FrameResult, 4)
	if err := b.Subscribe("haptics", ch); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	b.Publish(result(1))
	b.Publish(result(2))

	for want := uint64(1); want <= 2; want++ {
		select {
		case res := <-ch:
			if res.SequenceID != want {
				t.Errorf("got seq %d, want %d", res.SequenceID, want)
			}
		default:
			t.Fatalf("result %d not delivered", want)
		}
	}

	stats, err := b.Stats("haptics")
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Sent != 2 || stats.Dropped != 0 {
		t.Errorf("stats = %+v, want 2 sent 0 dropped", stats)
	}
}

func TestDropNewOnFullBuffer(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan aggregate.FrameResult, 1)
	if err := b.Subscribe("slow", ch); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	b.Publish(result(1))
	b.Publish(result(2)) // buffer full: dropped, publish must not block

	res := <-ch
	if res.SequenceID != 1 {
		t.Errorf("got seq %d, want 1 (oldest kept under DropNew)", res.SequenceID)
	}

	stats, _ := b.Stats("slow")
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 1 sent 1 dropped", stats)
	}
}

func TestDropOldKeepsLatest(t *testing.T) {
	b := New()
	defer b.Close()

	recv, err := b.SubscribeLatest("dashboard")
	if err != nil {
		t.Fatalf("SubscribeLatest() failed: %v", err)
	}

	b.Publish(result(1))
	b.Publish(result(2))
	b.Publish(result(3))

	res, ok := recv.TryReceive()
	if !ok {
		t.Fatal("TryReceive() found nothing")
	}
	if res.SequenceID != 3 {
		t.Errorf("got seq %d, want 3 (latest under DropOld)", res.SequenceID)
	}

	if _, ok := recv.TryReceive(); ok {
		t.Error("TryReceive() returned a consumed result twice")
	}
}

func TestReceiveBlocksUntilPublish(t *testing.T) {
	b := New()
	defer b.Close()

	recv, err := b.SubscribeLatest("blocking")
	if err != nil {
		t.Fatalf("SubscribeLatest() failed: %v", err)
	}

	got := make(chan aggregate.FrameResult, 1)
	go func() {
		if res, ok := recv.Receive(); ok {
			got <- res
		}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish(result(9))

	select {
	case res := <-got:
		if res.SequenceID != 9 {
			t.Errorf("got seq %d, want 9", res.SequenceID)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() not woken by Publish()")
	}
}

func TestDuplicateSubscriberRejected(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan aggregate.FrameResult, 1)
	if err := b.Subscribe("dup", ch); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := b.Subscribe("dup", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Fatalf("duplicate Subscribe() = %v, want ErrSubscriberExists", err)
	}
	if _, err := b.SubscribeLatest("dup"); !errors.Is(err, ErrSubscriberExists) {
		t.Fatalf("duplicate SubscribeLatest() = %v, want ErrSubscriberExists", err)
	}
}

func TestNilChannelRejected(t *testing.T) {
	b := New()
	defer b.Close()

	if err := b.Subscribe("nil", nil); !errors.Is(err, ErrNilChannel) {
		t.Fatalf("Subscribe(nil) = %v, want ErrNilChannel", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	ch := make(chan aggregate.FrameResult, 4)
	if err := b.Subscribe("gone", ch); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := b.Unsubscribe("gone"); err != nil {
		t.Fatalf("Unsubscribe() failed: %v", err)
	}

	b.Publish(result(1))
	select {
	case <-ch:
		t.Fatal("unsubscribed channel still received a result")
	default:
	}

	if err := b.Unsubscribe("gone"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("second Unsubscribe() = %v, want ErrSubscriberNotFound", err)
	}
}

func TestCloseWakesBlockedReceiver(t *testing.T) {
	b := New()

	recv, err := b.SubscribeLatest("waiter")
	if err != nil {
		t.Fatalf("SubscribeLatest() failed: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := recv.Receive()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive() reported ok after Close()")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() not woken by Close()")
	}

	if err := b.Subscribe("late", make(chan aggregate.FrameResult, 1)); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("Subscribe() after Close() = %v, want ErrBusClosed", err)
	}
}
