package common

import "testing"

func TestAssertPassesOnTrue(t *testing.T) {
	Assert(true, "should not panic")
}

func TestAssertPanicsOnFalse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Assert(false, ...) to panic")
		}
	}()
	Assert(false, "boom")
}

func TestGoIDReturnsPositiveID(t *testing.T) {
	if id := GoID(); id <= 0 {
		t.Fatalf("GoID() = %d, want a positive goroutine id", id)
	}
}
