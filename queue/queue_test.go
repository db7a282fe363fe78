package queue

import "testing"

func TestPushPopOrder(t *testing.T) {
	q := NewBounded[int](5)
	for i := 0; i < 5; i++ {
		if dropped := q.Push(i); dropped {
			t.Fatalf("Push(%d) dropped below capacity", i)
		}
	}
	for i := 0; i < 5; i++ {
		got, ok := q.Pop()
		if !ok || got != i {
			t.Fatalf("Pop() = %d, %v; want %d, true", got, ok, i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop() on empty queue returned ok")
	}
}

func TestPushDropsOldestWhenFull(t *testing.T) {
	q := NewBounded[int](3)
	for i := 0; i < 3; i++ {
		q.Push(i)
	}
	if dropped := q.Push(3); !dropped {
		t.Fatal("Push over capacity did not report a drop")
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	// 0 was the oldest and must be gone.
	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := NewBounded[string](2)
	if _, ok := q.Peek(); ok {
		t.Fatal("Peek() on empty queue returned ok")
	}
	q.Push("a")
	got, ok := q.Peek()
	if !ok || got != "a" {
		t.Fatalf("Peek() = %q, %v; want %q, true", got, ok, "a")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() after Peek = %d, want 1", q.Len())
	}
}
