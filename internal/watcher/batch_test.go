package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, b *Batcher, within time.Duration) Batch {
	t.Helper()
	select {
	case batch, ok := <-b.Batches():
		require.True(t, ok, "batch channel closed")
		return batch
	case <-time.After(within):
		t.Fatal("no batch")
		return Batch{}
	}
}

func assertNoBatch(t *testing.T, b *Batcher, wait time.Duration) {
	t.Helper()
	select {
	case batch := <-b.Batches():
		t.Fatalf("unexpected batch with %d events", batch.Len())
	case <-time.After(wait):
	}
}

func TestBatcher_CoalescesBurst(t *testing.T) {
	b := NewBatcher(50*time.Millisecond, time.Second)
	defer b.Close()

	for range 20 {
		b.Add(Event{Path: "/r/a.txt", Op: OpWrite})
		time.Sleep(time.Millisecond)
	}
	b.Add(Event{Path: "/r/b.txt", Op: OpCreate})

	batch := receiveBatch(t, b, time.Second)
	assert.Equal(t, []string{"/r/a.txt", "/r/b.txt"}, batch.Paths())
	assert.Equal(t, OpWrite, batch.Events[0].Op)
	assert.False(t, batch.Start.After(batch.End))
	assertNoBatch(t, b, 120*time.Millisecond)
}

func TestBatcher_MergesOps(t *testing.T) {
	b := NewBatcher(20*time.Millisecond, 0)
	defer b.Close()

	b.Add(Event{Path: "/r/x", Op: OpCreate})
	b.Add(Event{Path: "/r/x", Op: OpWrite})
	b.Add(Event{Path: "/r/x", Op: OpChmod})

	batch := receiveBatch(t, b, time.Second)
	require.Equal(t, 1, batch.Len())
	assert.Equal(t, OpCreate|OpWrite|OpChmod, batch.Events[0].Op)
}

func TestBatcher_RenameIsRemovePlusCreate(t *testing.T) {
	b := NewBatcher(20*time.Millisecond, 0)
	defer b.Close()

	b.Add(Event{Path: "/r/old", Op: OpRename})
	b.Add(Event{Path: "/r/new", Op: OpCreate})

	batch := receiveBatch(t, b, time.Second)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, OpRemove, batch.Events[0].Op)
	assert.Equal(t, OpCreate, batch.Events[1].Op)
}

func TestBatcher_SeparateWindows(t *testing.T) {
	b := NewBatcher(20*time.Millisecond, 0)
	defer b.Close()

	b.Add(Event{Path: "/r/1", Op: OpWrite})
	first := receiveBatch(t, b, time.Second)
	b.Add(Event{Path: "/r/2", Op: OpWrite})
	second := receiveBatch(t, b, time.Second)

	assert.Equal(t, []string{"/r/1"}, first.Paths())
	assert.Equal(t, []string{"/r/2"}, second.Paths())
}

func TestBatcher_MaxWaitBoundsContinuousWrites(t *testing.T) {
	b := NewBatcher(40*time.Millisecond, 100*time.Millisecond)
	defer b.Close()

	stop := time.After(400 * time.Millisecond)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	start := time.Now()
	var got Batch
	received := false
loop:
	for {
		select {
		case <-tick.C:
			b.Add(Event{Path: "/r/busy", Op: OpWrite})
		case got = <-b.Batches():
			received = true
			break loop
		case <-stop:
			break loop
		}
	}
	require.True(t, received, "maxWait did not force a batch")
	assert.Less(t, time.Since(start), 350*time.Millisecond)
	assert.Equal(t, 1, got.Len())
}

func TestBatcher_Overflow(t *testing.T) {
	b := NewBatcher(20*time.Millisecond, 0)
	defer b.Close()

	b.MarkOverflow()
	batch := receiveBatch(t, b, time.Second)
	assert.True(t, batch.Overflow)
	assert.Zero(t, batch.Len())
}

func TestBatcher_FlushAndPending(t *testing.T) {
	b := NewBatcher(time.Hour, 0)
	defer b.Close()

	b.Add(Event{Path: "/r/a", Op: OpWrite})
	assert.Equal(t, 1, b.Pending())
	b.Flush()

	batch := receiveBatch(t, b, time.Second)
	assert.Equal(t, 1, batch.Len())
	assert.Zero(t, b.Pending())
}

func TestBatcher_Close(t *testing.T) {
	b := NewBatcher(time.Hour, 0)
	b.Add(Event{Path: "/r/a", Op: OpWrite})
	b.Close()
	b.Close()

	_, ok := <-b.Batches()
	assert.False(t, ok)
	b.Add(Event{Path: "/r/b", Op: OpWrite})
	assert.Zero(t, b.Pending())
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "CREATE|WRITE", (OpCreate | OpWrite).String())
	assert.Equal(t, "UNKNOWN", Op(0).String())
}
