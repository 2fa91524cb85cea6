package task

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func waitTerminal(t *testing.T, store *Store, id string) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		if got.Terminal() {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task did not reach terminal status")
	return Task{}
}

func TestRunnerCompletesTask(t *testing.T) {
	store := newTestStore(t)
	runner := NewRunner(store, 1)
	runner.Register("echo", func(ctx context.Context, payload string) (string, error) {
		return payload, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	submitted, err := runner.Submit(ctx, "echo", map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, submitted.Status)

	got := waitTerminal(t, store, submitted.ID)
	assert.Equal(t, StatusDone, got.Status)
	assert.JSONEq(t, `{"symbol":"AAPL"}`, got.ResultJSON)
	require.NotNil(t, got.CompletedAt)
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := newTestStore(t)
	runner := NewRunner(store, 1)
	runner.Register("boom", func(ctx context.Context, payload string) (string, error) {
		return "", errors.New("上游超时")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	submitted, err := runner.Submit(ctx, "boom", nil)
	require.NoError(t, err)

	got := waitTerminal(t, store, submitted.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Message, "超时")
}

func TestRunnerRecoversPendingAfterRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")

	// 上一个进程留下的 pending 任务
	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), Task{
		ID: "stranded", Kind: "echo", PayloadJSON: `{"symbol":"SPY"}`,
	}))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	runner := NewRunner(store, 1)
	runner.Register("echo", func(ctx context.Context, payload string) (string, error) {
		return payload, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx)

	got := waitTerminal(t, store, "stranded")
	assert.Equal(t, StatusDone, got.Status)
	assert.JSONEq(t, `{"symbol":"SPY"}`, got.ResultJSON)
}

func TestSubmitUnknownKind(t *testing.T) {
	runner := NewRunner(newTestStore(t), 1)
	_, err := runner.Submit(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, Task{ID: "a", Kind: "echo"}))
	require.NoError(t, store.Create(ctx, Task{ID: "b", Kind: "echo"}))
	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
