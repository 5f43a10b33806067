package database

import (
	"context"
	"learnhub_backend/pkg/monitoring"
	"sync"
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

// StatusMonitor 周期性探测数据库连通性。由 App 构造并在退出时 Stop，
// 关心状态变化的组件通过 Subscribe 获取通知
type StatusMonitor struct {
	db       *gorm.DB
	interval time.Duration
	timeout  time.Duration

	mu          sync.RWMutex
	status      Status
	lastChecked time.Time
	subscribers []chan Status

	cancel context.CancelFunc
	done   chan struct{}
}

func NewStatusMonitor(db *gorm.DB, interval time.Duration) *StatusMonitor {
	return &StatusMonitor{
		db:       db,
		interval: interval,
		timeout:  5 * time.Second,
		status:   StatusUnknown,
	}
}

func (m *StatusMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.Check(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

func (m *StatusMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done

	m.mu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.mu.Unlock()
}

// Check 立即探测一次，5 秒超时
func (m *StatusMonitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	next := StatusUp
	sqlDB, err := m.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		next = StatusDown
	}
	m.set(next)
	return next
}

func (m *StatusMonitor) Current() (Status, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.lastChecked
}

// Subscribe 返回状态变化通道，慢消费者会丢失中间状态
func (m *StatusMonitor) Subscribe() <-chan Status {
	ch := make(chan Status, 1)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

func (m *StatusMonitor) set(next Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastChecked = time.Now()
	if next == StatusUp {
		monitoring.DBUp.Set(1)
	} else {
		monitoring.DBUp.Set(0)
	}
	if next == m.status {
		return
	}
	m.status = next
	for _, ch := range m.subscribers {
		select {
		case ch <- next:
		default:
		}
	}
}
