package courier

import (
	"testing"
	"time"
)

func newTestMessage(t *testing.T, subject string) *Message {
	t.Helper()
	msg, err := NewMessage(testMessage(subject))
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	return msg
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue()
	var msgs []*Message
	for _, s := range []string{"a", "b", "c"} {
		m := newTestMessage(t, s)
		msgs = append(msgs, m)
		if !q.push(m) {
			t.Fatal("push failed on open queue")
		}
	}
	if q.len() != 3 {
		t.Fatalf("len = %d", q.len())
	}
	for i, want := range msgs {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("pop %d returned the wrong message", i)
		}
	}
	if q.len() != 0 {
		t.Errorf("len = %d after draining", q.len())
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	want := newTestMessage(t, "late")

	got := make(chan *Message, 1)
	go func() {
		m, _ := q.pop()
		got <- m
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(want)
	select {
	case m := <-got:
		if m != want {
			t.Error("pop returned the wrong message")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueueClose(t *testing.T) {
	q := newQueue()
	a, b := newTestMessage(t, "a"), newTestMessage(t, "b")
	q.push(a)
	q.push(b)

	drained := q.close()
	if len(drained) != 2 || drained[0] != a || drained[1] != b {
		t.Fatalf("close drained %d messages", len(drained))
	}
	if q.close() != nil {
		t.Error("second close should drain nothing")
	}
	if q.push(newTestMessage(t, "c")) {
		t.Error("push succeeded on closed queue")
	}
	if _, ok := q.pop(); ok {
		t.Error("pop succeeded on closed queue")
	}
}

func TestQueueCloseWakesPop(t *testing.T) {
	q := newQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("pop reported a message after close")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not wake pop")
	}
}
