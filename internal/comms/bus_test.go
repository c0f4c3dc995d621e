// internal/comms/bus_test.go
package comms

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TEAMTWIN/internal/skb"
)

func TestSendAndRecvFIFO(t *testing.T) {
	b := NewBus(nil)
	b.Register("mgr")
	b.Register("a1")

	for i := 0; i < 5; i++ {
		msg, err := NewMessage("mgr", "a1", TypeGeneral, "", map[string]int{"seq": i})
		if err != nil {
			t.Fatal(err)
		}
		if err := b.Send(msg); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg, err := b.Recv(ctx, "a1")
		if err != nil {
			t.Fatalf("Recv(%d): %v", i, err)
		}
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if string(msg.Payload) != want {
			t.Errorf("out of order: got %s, want %s", msg.Payload, want)
		}
	}
}

func TestSendUnknownRecipient(t *testing.T) {
	b := NewBus(nil)
	b.Register("mgr")

	msg, _ := NewMessage("mgr", "ghost", TypeGeneral, "", nil)
	if err := b.Send(msg); !errors.Is(err, ErrUnknownRecipient) {
		t.Errorf("expected unknown recipient, got %v", err)
	}
}

func TestRecvBlocksUntilContextEnds(t *testing.T) {
	b := NewBus(nil)
	b.Register("a1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Recv(ctx, "a1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Recv returned before the deadline")
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	b := NewBus(nil)
	for _, id := range []string{"mgr", "a1", "a2"} {
		b.Register(id)
	}

	msg, _ := NewMessage("mgr", "", TypeGeneral, "t1", nil)
	if err := b.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for _, id := range []string{"a1", "a2"} {
		got, ok := b.TryRecv(id)
		if !ok {
			t.Fatalf("%s received nothing", id)
		}
		if got.To != id {
			t.Errorf("envelope addressed to %s, want %s", got.To, id)
		}
	}
	if _, ok := b.TryRecv("mgr"); ok {
		t.Error("sender should not receive its own broadcast")
	}
}

func TestDeliveryIsAudited(t *testing.T) {
	kb := skb.New(nil)
	b := NewBus(kb)
	b.Register("mgr")
	b.Register("a1")

	msg, _ := NewMessage("mgr", "a1", TypeTaskConsultation, "t1", map[string]string{"q": "can you?"})
	if err := b.Send(msg); err != nil {
		t.Fatal(err)
	}

	log := kb.MessageHistory("t1")
	if len(log) != 1 {
		t.Fatalf("audit len = %d, want 1", len(log))
	}
	e := log[0]
	if e.MessageID != msg.ID || e.FromAgent != "mgr" || e.ToAgent != "a1" {
		t.Errorf("audit entry = %+v", e)
	}
	if e.Type != string(TypeTaskConsultation) {
		t.Errorf("type = %s", e.Type)
	}
	if e.ReceivedAt.Before(e.SentAt) {
		t.Error("received before sent")
	}
}

func TestTryRecvEmpty(t *testing.T) {
	b := NewBus(nil)
	b.Register("a1")
	if _, ok := b.TryRecv("a1"); ok {
		t.Error("empty inbox should return false")
	}
	if _, ok := b.TryRecv("ghost"); ok {
		t.Error("unknown agent should return false")
	}
}
