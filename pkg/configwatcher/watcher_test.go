package configwatcher

import (
	"context"
	"errors"
	"learnhub_backend/internal/config"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v: 1\n"), 0o644))

	var (
		loads    atomic.Int32
		reloaded atomic.Int32
		fail     atomic.Bool
	)
	loader := func(d string) (*config.Config, error) {
		loads.Add(1)
		assert.Equal(t, dir, d)
		if fail.Load() {
			return nil, errors.New("invalid policy")
		}
		return &config.Config{}, nil
	}
	w := New(path, func(*config.Config) { reloaded.Add(1) }).
		WithLoader(loader).
		WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 等待 watcher 建立
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("v: 2\n"), 0o644)
		return reloaded.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	// 等待残留的防抖触发完毕；其他文件的变化被忽略
	time.Sleep(100 * time.Millisecond)
	before := loads.Load()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, loads.Load())

	// 加载失败不调用回调
	fail.Store(true)
	okReloads := reloaded.Load()
	require.NoError(t, os.WriteFile(path, []byte("v: 3\n"), 0o644))
	require.Eventually(t, func() bool { return loads.Load() > before }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, okReloads, reloaded.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "config.yaml"), func(*config.Config) {})
	assert.Error(t, w.Run(context.Background()))
}
