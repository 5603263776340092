package cache

import (
	"errors"
	"fmt"
	"testing"
)

func TestInsertPending(t *testing.T) {
	c := New(Hooks{})

	if !c.InsertPending("fp1") {
		t.Fatal("first InsertPending should succeed")
	}
	if c.InsertPending("fp1") {
		t.Fatal("second InsertPending for the same fingerprint should fail")
	}

	out, ok := c.Peek("fp1")
	if !ok {
		t.Fatal("Peek should find the slot")
	}
	if out.State != StatePending {
		t.Errorf("state = %v, want pending", out.State)
	}
}

func TestResolve(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")
	c.Resolve("fp1", 42)

	out, _ := c.Peek("fp1")
	if out.State != StateResolved {
		t.Fatalf("state = %v, want resolved", out.State)
	}
	if out.Value != 42 {
		t.Errorf("value = %v, want 42", out.Value)
	}
}

func TestReject_Sticky(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")

	boom := errors.New("boom")
	c.Reject("fp1", boom)

	// Later transitions are no-ops; the error is sticky.
	c.Resolve("fp1", 42)
	c.Reject("fp1", errors.New("other"))

	out, _ := c.Peek("fp1")
	if out.State != StateRejected {
		t.Fatalf("state = %v, want rejected", out.State)
	}
	if out.Err != boom {
		t.Errorf("err = %v, want the original error", out.Err)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")
	c.Resolve("fp1", 1)
	c.Resolve("fp1", 2)
	c.Reject("fp1", errors.New("late"))

	out, _ := c.Peek("fp1")
	if out.State != StateResolved || out.Value != 1 {
		t.Errorf("slot changed after terminal transition: %+v", out)
	}
}

func TestResolve_AbsentFingerprint(t *testing.T) {
	c := New(Hooks{})
	c.Resolve("missing", 1)
	c.Reject("missing", errors.New("x"))

	if _, ok := c.Peek("missing"); ok {
		t.Error("settling an absent fingerprint should not create a slot")
	}
}

func TestWait_FIFOOrder(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")

	var order []string
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("w%d", i)
		c.Wait("fp1", func(value any, err error) {
			order = append(order, name)
		})
	}

	c.Resolve("fp1", 42)

	if len(order) != 3 {
		t.Fatalf("got %d waiter calls, want 3", len(order))
	}
	for i, name := range []string{"w0", "w1", "w2"} {
		if order[i] != name {
			t.Errorf("order[%d] = %s, want %s", i, order[i], name)
		}
	}
}

func TestWait_WaitersClearedAfterSettle(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")

	calls := 0
	c.Wait("fp1", func(any, error) { calls++ })
	c.Resolve("fp1", 1)
	c.Resolve("fp1", 2)

	if calls != 1 {
		t.Errorf("waiter invoked %d times, want 1", calls)
	}
}

func TestWait_TerminalSlotInvokesImmediately(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("fp1")
	c.Resolve("fp1", 42)

	var got any
	ok := c.Wait("fp1", func(value any, err error) { got = value })
	if !ok {
		t.Fatal("Wait on a terminal slot should succeed")
	}
	if got != 42 {
		t.Errorf("waiter got %v, want 42", got)
	}
}

func TestWait_AbsentFingerprint(t *testing.T) {
	c := New(Hooks{})
	if c.Wait("missing", func(any, error) {}) {
		t.Error("Wait on an absent fingerprint should return false")
	}
}

func TestHooks(t *testing.T) {
	var pending, settled int
	c := New(Hooks{
		OnPending: func() { pending++ },
		OnSettled: func() { settled++ },
	})

	c.InsertPending("a")
	c.InsertPending("b")
	if pending != 2 {
		t.Errorf("OnPending fired %d times, want 2", pending)
	}

	c.Resolve("a", 1)
	c.Reject("b", errors.New("x"))
	c.Resolve("a", 2) // no-op, must not fire again
	if settled != 2 {
		t.Errorf("OnSettled fired %d times, want 2", settled)
	}
}

func TestLen(t *testing.T) {
	c := New(Hooks{})
	c.InsertPending("a")
	c.InsertPending("b")
	c.Resolve("a", 1)

	// No eviction: settled slots stay.
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
