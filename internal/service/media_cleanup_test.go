package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/testutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDeleter 前 failures 次删除失败
type flakyDeleter struct {
	mu       sync.Mutex
	failures int
	calls    int
	deleted  []string
}

func (d *flakyDeleter) DeleteByURL(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return errors.New("storage unavailable")
	}
	d.deleted = append(d.deleted, url)
	return nil
}

func (d *flakyDeleter) snapshot() (int, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls, append([]string(nil), d.deleted...)
}

func TestMemoryCleanupQueue_Full(t *testing.T) {
	q := NewMemoryCleanupQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, CleanupJob{URL: "a"}))
	assert.ErrorIs(t, q.Enqueue(ctx, CleanupJob{URL: "b"}), ErrQueueFull)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.URL)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Dequeue(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMediaJanitor_RetriesThenSucceeds(t *testing.T) {
	db := testutil.NewDB(t)
	deleter := &flakyDeleter{failures: 2}
	j := NewMediaJanitor(NewMemoryCleanupQueue(4), deleter, repository.NewDeadLetterRepository(db), 1, 5, time.Millisecond)

	j.Process(context.Background(), CleanupJob{URL: "/uploads/a.mp4", Reason: "course_deleted"})

	calls, deleted := deleter.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"/uploads/a.mp4"}, deleted)

	var n int64
	require.NoError(t, db.Model(&model.MediaCleanupDeadLetter{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestMediaJanitor_DeadLettersAfterMaxAttempts(t *testing.T) {
	db := testutil.NewDB(t)
	deleter := &flakyDeleter{failures: 100}
	deadLetters := repository.NewDeadLetterRepository(db)
	j := NewMediaJanitor(NewMemoryCleanupQueue(4), deleter, deadLetters, 1, 3, time.Millisecond)

	j.Process(context.Background(), CleanupJob{URL: "/uploads/b.png", Reason: "course_updated"})

	calls, _ := deleter.snapshot()
	assert.Equal(t, 3, calls)
	list, err := deadLetters.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/uploads/b.png", list[0].URL)
	assert.Equal(t, 3, list[0].Attempts)
	assert.Equal(t, "storage unavailable", list[0].LastError)
}

func TestMediaJanitor_RequeuesOnShutdown(t *testing.T) {
	queue := NewMemoryCleanupQueue(4)
	deleter := &flakyDeleter{failures: 100}
	j := NewMediaJanitor(queue, deleter, nil, 1, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Process(ctx, CleanupJob{URL: "/uploads/c.pdf"})
		close(done)
	}()
	require.Eventually(t, func() bool { calls, _ := deleter.snapshot(); return calls == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 1, queue.Len())
	job, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
}

func TestMediaJanitor_RunDrainsQueue(t *testing.T) {
	queue := NewMemoryCleanupQueue(8)
	deleter := &flakyDeleter{}
	j := NewMediaJanitor(queue, deleter, nil, 2, 3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(stopped)
	}()

	EnqueueMedia(queue, "course_deleted", []string{"/uploads/1.mp4", "/uploads/2.mp4", "/uploads/3.mp4"})
	require.Eventually(t, func() bool { _, d := deleter.snapshot(); return len(d) == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStorageService_DeleteByURL(t *testing.T) {
	dir := t.TempDir()
	svc := &StorageService{Provider: &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: dir}}}
	path := filepath.Join(dir, "courses", "x.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	ctx := context.Background()
	require.NoError(t, svc.DeleteByURL(ctx, "/uploads/courses/x.png"))
	assert.NoFileExists(t, path)

	// 重复删除与外部链接都视为成功
	assert.NoError(t, svc.DeleteByURL(ctx, "/uploads/courses/x.png"))
	assert.NoError(t, svc.DeleteByURL(ctx, "https://youtu.be/abc"))
	assert.NoError(t, svc.DeleteByURL(ctx, "/uploads/../etc/passwd"))
}
