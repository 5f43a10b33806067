package configwatcher

import (
	"context"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/pkg/logger"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reloader 收到新配置后的回调，由调用方决定哪些字段可以热更新
type Reloader func(cfg *config.Config)

// Loader 便于测试替换
type Loader func(dir string) (*config.Config, error)

type Watcher struct {
	path     string
	debounce time.Duration
	load     Loader
	reloader Reloader
}

func New(configFile string, reloader Reloader) *Watcher {
	return &Watcher{
		path:     configFile,
		debounce: time.Second,
		load:     config.LoadConfig,
		reloader: reloader,
	}
}

// WithLoader 替换配置加载函数
func (w *Watcher) WithLoader(load Loader) *Watcher {
	w.load = load
	return w
}

// WithDebounce 设置防抖间隔
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run 阻塞直到 ctx 取消。监听所在目录而不是文件本身，编辑器的原子替换也能捕获
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 防抖
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			newCfg, err := w.load(filepath.Dir(absPath))
			if err != nil {
				// 校验失败时保留旧配置
				logger.Log.Error("Failed to reload config", zap.Error(err))
				continue
			}
			logger.Log.Info("Config reloaded", zap.String("path", absPath))
			w.reloader(newCfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Error("Config watcher error", zap.Error(err))
		}
	}
}
