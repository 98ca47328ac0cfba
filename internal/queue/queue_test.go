package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunQueue_FIFOOrder(t *testing.T) {
	q := New()
	q.Push("run-1")
	q.Push("run-2")
	q.Push("run-3")

	for _, want := range []string{"run-1", "run-2", "run-3"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestRunQueue_PopBlocksUntilPush(t *testing.T) {
	q := New()

	done := make(chan string, 1)
	go func() {
		runID, ok := q.Pop()
		if ok {
			done <- runID
		} else {
			done <- ""
		}
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("run-late")
	select {
	case got := <-done:
		assert.Equal(t, "run-late", got)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestRunQueue_CloseUnblocksPop(t *testing.T) {
	q := New()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestRunQueue_PushAfterCloseIsNoop(t *testing.T) {
	q := New()
	q.Close()
	q.Push("run-ignored")
	assert.Equal(t, 0, q.Len())
}

func TestRunQueue_Len(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Len())
	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())
	_, _ = q.Pop()
	assert.Equal(t, 1, q.Len())
}
