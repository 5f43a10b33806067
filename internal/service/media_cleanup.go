package service

import (
	"context"
	"encoding/json"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const mediaCleanupKey = "learnhub:media_cleanup"

var ErrQueueFull = errors.New("media cleanup queue is full")

// CleanupJob 一次外部媒体删除任务
type CleanupJob struct {
	URL      string `json:"url"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// MediaCleanupQueue 媒体删除队列，至少一次投递
type MediaCleanupQueue interface {
	Enqueue(ctx context.Context, jobs ...CleanupJob) error
	// Dequeue 阻塞直到取到任务或 ctx 结束
	Dequeue(ctx context.Context) (CleanupJob, error)
}

// MemoryCleanupQueue 进程内队列，未启用 Redis 时使用
type MemoryCleanupQueue struct {
	ch chan CleanupJob
}

func NewMemoryCleanupQueue(size int) *MemoryCleanupQueue {
	return &MemoryCleanupQueue{ch: make(chan CleanupJob, size)}
}

func (q *MemoryCleanupQueue) Enqueue(ctx context.Context, jobs ...CleanupJob) error {
	for _, job := range jobs {
		select {
		case q.ch <- job:
		default:
			return ErrQueueFull
		}
	}
	return nil
}

func (q *MemoryCleanupQueue) Dequeue(ctx context.Context) (CleanupJob, error) {
	select {
	case job := <-q.ch:
		return job, nil
	case <-ctx.Done():
		return CleanupJob{}, ctx.Err()
	}
}

func (q *MemoryCleanupQueue) Len() int {
	return len(q.ch)
}

// RedisCleanupQueue 基于 Redis list，进程重启后任务不丢失
type RedisCleanupQueue struct {
	Client *redis.Client
	Key    string
}

func NewRedisCleanupQueue(client *redis.Client) *RedisCleanupQueue {
	return &RedisCleanupQueue{Client: client, Key: mediaCleanupKey}
}

func (q *RedisCleanupQueue) Enqueue(ctx context.Context, jobs ...CleanupJob) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		b, err := json.Marshal(job)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	return q.Client.LPush(ctx, q.Key, values...).Err()
}

func (q *RedisCleanupQueue) Dequeue(ctx context.Context) (CleanupJob, error) {
	for {
		res, err := q.Client.BRPop(ctx, 2*time.Second, q.Key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return CleanupJob{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return CleanupJob{}, ctx.Err()
			}
			return CleanupJob{}, err
		}
		// res[0] 为 key，res[1] 为值
		var job CleanupJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			logger.Log.Error("丢弃无法解析的清理任务", zap.String("raw", res[1]), zap.Error(err))
			continue
		}
		return job, nil
	}
}

// EnqueueMedia 异步投递待删除媒体，失败只记录日志，不影响调用方
func EnqueueMedia(queue MediaCleanupQueue, reason string, urls []string) {
	if queue == nil || len(urls) == 0 {
		return
	}
	jobs := make([]CleanupJob, 0, len(urls))
	for _, u := range urls {
		jobs = append(jobs, CleanupJob{URL: u, Reason: reason})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := queue.Enqueue(ctx, jobs...); err != nil {
			logger.Log.Error("媒体清理任务入队失败",
				zap.String("reason", reason),
				zap.Strings("urls", urls),
				zap.Error(err))
		}
	}()
}

// MediaDeleter 由 StorageService 实现
type MediaDeleter interface {
	DeleteByURL(ctx context.Context, url string) error
}

// MediaJanitor 消费清理队列，失败按指数退避加抖动重试，超过上限写入死信
type MediaJanitor struct {
	Queue       MediaCleanupQueue
	Storage     MediaDeleter
	DeadLetters *repository.DeadLetterRepository
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewMediaJanitor(queue MediaCleanupQueue, storage MediaDeleter, deadLetters *repository.DeadLetterRepository, workers, maxAttempts int, baseDelay time.Duration) *MediaJanitor {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &MediaJanitor{
		Queue:       queue,
		Storage:     storage,
		DeadLetters: deadLetters,
		Workers:     workers,
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
	}
}

// Run 阻塞直到 ctx 取消且所有 worker 退出
func (j *MediaJanitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < j.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			j.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	logger.Log.Info("媒体清理 worker 已退出")
}

func (j *MediaJanitor) worker(ctx context.Context, id int) {
	for {
		job, err := j.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("读取清理队列失败", zap.Int("worker", id), zap.Error(err))
			if !sleepCtx(ctx, j.BaseDelay) {
				return
			}
			continue
		}
		j.Process(ctx, job)
	}
}

// Process 处理单个任务直到成功、进入死信或 ctx 取消。取消时任务放回队列
func (j *MediaJanitor) Process(ctx context.Context, job CleanupJob) {
	var lastErr error
	for job.Attempts < j.MaxAttempts {
		err := j.Storage.DeleteByURL(ctx, job.URL)
		job.Attempts++
		if err == nil {
			monitoring.MediaCleanup.WithLabelValues("deleted").Inc()
			logger.Log.Info("外部媒体已删除", zap.String("url", job.URL), zap.String("reason", job.Reason))
			return
		}
		lastErr = err
		if job.Attempts >= j.MaxAttempts {
			break
		}

		monitoring.MediaCleanup.WithLabelValues("retried").Inc()
		if !sleepCtx(ctx, j.backoff(job.Attempts)) {
			requeueCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := j.Queue.Enqueue(requeueCtx, job); err != nil {
				logger.Log.Error("退出时清理任务回队失败", zap.String("url", job.URL), zap.Error(err))
			}
			cancel()
			return
		}
	}
	j.deadLetter(job, lastErr)
}

func (j *MediaJanitor) backoff(attempt int) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(j.BaseDelay)))
	return time.Duration(math.Pow(2, float64(attempt-1)))*j.BaseDelay + jitter
}

func (j *MediaJanitor) deadLetter(job CleanupJob, lastErr error) {
	monitoring.MediaCleanup.WithLabelValues("dead_letter").Inc()
	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	logger.Log.Error("外部媒体删除多次失败，写入死信",
		zap.String("url", job.URL),
		zap.String("reason", job.Reason),
		zap.Int("attempts", job.Attempts),
		zap.Error(lastErr))

	if j.DeadLetters == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.DeadLetters.Create(ctx, &model.MediaCleanupDeadLetter{
		URL:       job.URL,
		Reason:    job.Reason,
		Attempts:  job.Attempts,
		LastError: msg,
	}); err != nil {
		logger.Log.Error("写入死信记录失败", zap.String("url", job.URL), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
