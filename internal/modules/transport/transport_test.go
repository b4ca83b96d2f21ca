package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/types"
)

func TestBus_SendAndOrder(t *testing.T) {
	b := NewBus(nil)
	mb, err := b.Open("driver-0")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := b.Send(Message{Kind: KindRequest, From: types.RiderID(i), To: "driver-0"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		msg, ok := mb.Next()
		if !ok {
			t.Fatalf("missing message %d", i)
		}
		if msg.From != types.RiderID(i) {
			t.Fatalf("message %d from %s, want %s", i, msg.From, types.RiderID(i))
		}
	}
	if _, ok := mb.Next(); ok {
		t.Fatal("mailbox should be empty")
	}
}

func TestBus_OpenTwice(t *testing.T) {
	b := NewBus(nil)
	if _, err := b.Open("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open("a"); !errors.Is(err, ErrDuplicateActor) {
		t.Fatalf("expected ErrDuplicateActor, got %v", err)
	}
}

func TestBus_SendToClosed(t *testing.T) {
	b := NewBus(nil)
	mb, _ := b.Open("a")
	b.Close("a")
	if err := b.Send(Message{To: "a"}); !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor, got %v", err)
	}
	_, err := mb.Receive(context.Background(), func(Message) bool { return true }, time.Time{})
	if !errors.Is(err, ErrMailboxClosed) {
		t.Fatalf("expected ErrMailboxClosed, got %v", err)
	}
}

func TestBroadcast_Partial(t *testing.T) {
	b := NewBus(nil)
	b.Open("driver-0")
	b.Open("driver-2")
	got, err := Broadcast(b, Message{Kind: KindRequest, From: "rider-0"}, []types.ID{"driver-0", "driver-1", "driver-2"})
	if len(got) != 2 {
		t.Fatalf("delivered = %v, want 2 receivers", got)
	}
	if !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("expected ErrUnknownActor in joined error, got %v", err)
	}
	for _, id := range []types.ID{"driver-0", "driver-2"} {
		if b.boxes[id].Len() != 1 {
			t.Fatalf("%s did not receive the request", id)
		}
	}
}

func TestMailbox_ReceiveStashesNonMatching(t *testing.T) {
	mb := NewMailbox("rider-0")
	mb.put(Message{Kind: KindOffer, From: "driver-0"})
	mb.put(Message{Kind: KindConfirm, From: "driver-1"})
	mb.put(Message{Kind: KindOffer, From: "driver-2"})

	msg, err := mb.Receive(context.Background(), func(m Message) bool { return m.Kind == KindConfirm }, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if msg.From != "driver-1" {
		t.Fatalf("got %s, want driver-1", msg.From)
	}
	first, _ := mb.Next()
	second, _ := mb.Next()
	if first.From != "driver-0" || second.From != "driver-2" {
		t.Fatalf("stashed order = %s, %s", first.From, second.From)
	}
}

func TestMailbox_ReceiveTimeout(t *testing.T) {
	mb := NewMailbox("rider-0")
	mb.put(Message{Kind: KindOffer})
	start := time.Now()
	_, err := mb.Receive(context.Background(), func(m Message) bool { return m.Kind == KindConfirm }, start.Add(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("returned before the deadline")
	}
	if mb.Len() != 1 {
		t.Fatalf("non-matching message lost, len=%d", mb.Len())
	}
}

func TestMailbox_ReceiveWakesOnArrival(t *testing.T) {
	b := NewBus(nil)
	mb, _ := b.Open("rider-0")
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Send(Message{Kind: KindDecline, To: "rider-0"})
		b.Send(Message{Kind: KindCommitAck, To: "rider-0", From: "driver-3"})
	}()
	msg, err := mb.Receive(context.Background(), func(m Message) bool { return m.Kind == KindCommitAck }, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if msg.From != "driver-3" {
		t.Fatalf("got %+v", msg)
	}
}

func TestMailbox_ReceiveContextCancel(t *testing.T) {
	mb := NewMailbox("rider-0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mb.Receive(ctx, func(Message) bool { return true }, time.Time{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMailbox_Discard(t *testing.T) {
	mb := NewMailbox("rider-0")
	mb.put(Message{Kind: KindOffer, Conversation: "old"})
	mb.put(Message{Kind: KindOffer, Conversation: "new"})
	mb.put(Message{Kind: KindDecline, Conversation: "old"})
	dropped := mb.Discard(func(m Message) bool { return m.Conversation == "old" })
	if len(dropped) != 2 || mb.Len() != 1 {
		t.Fatalf("dropped %d, left %d", len(dropped), mb.Len())
	}
}

func TestMailbox_ConcurrentSenders(t *testing.T) {
	b := NewBus(nil)
	mb, _ := b.Open("driver-0")
	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Send(Message{Kind: KindRequest, From: types.RiderID(s), To: "driver-0", Price: float64(i)})
			}
		}(s)
	}
	wg.Wait()

	// per-sender order is preserved
	last := map[types.ID]float64{}
	n := 0
	for {
		msg, ok := mb.Next()
		if !ok {
			break
		}
		n++
		if prev, seen := last[msg.From]; seen && msg.Price <= prev {
			t.Fatalf("out of order from %s: %v after %v", msg.From, msg.Price, prev)
		}
		last[msg.From] = msg.Price
	}
	if n != 400 {
		t.Fatalf("received %d, want 400", n)
	}
}

func TestMessage_Reply(t *testing.T) {
	req := Message{Kind: KindRequest, From: "rider-0", To: "driver-0", Conversation: "c1"}
	r := req.Reply(KindOffer)
	if r.From != "driver-0" || r.To != "rider-0" || r.Conversation != "c1" || r.Kind != KindOffer {
		t.Fatalf("reply = %+v", r)
	}
	if !KindCommit.ToResponder() || KindOffer.ToResponder() {
		t.Fatal("direction of kinds is wrong")
	}
}
