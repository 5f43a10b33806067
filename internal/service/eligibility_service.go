package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PolicyHolder 保存当前生效的资格策略，配置热更新时整体替换
type PolicyHolder struct {
	mu     sync.RWMutex
	policy config.PolicyConfig
}

func NewPolicyHolder(p config.PolicyConfig) *PolicyHolder {
	return &PolicyHolder{policy: p}
}

func (h *PolicyHolder) Get() config.PolicyConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policy
}

// Set 新策略校验失败时保留旧策略
func (h *PolicyHolder) Set(p config.PolicyConfig) error {
	if err := p.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.policy = p
	h.mu.Unlock()
	return nil
}

// Eligibility 证书资格评估结果
type Eligibility struct {
	UserID          uint      `json:"userId"`
	CourseID        uint      `json:"courseId"`
	TotalVideos     int       `json:"totalVideos"`
	WatchedVideos   int       `json:"watchedVideos"`
	VideoProgress   float64   `json:"videoProgress"`
	QuizScore       float64   `json:"quizScore"`
	AssignmentScore float64   `json:"assignmentScore"`
	OverallScore    float64   `json:"overallScore"`
	QuizzesUnlocked bool      `json:"quizzesUnlocked"`
	IsEligible      bool      `json:"isEligible"`
	EvaluatedAt     time.Time `json:"evaluatedAt"`
}

// EligibilityInput 计算资格所需的原始数据
type EligibilityInput struct {
	TotalVideos      int
	WatchedVideos    int
	QuizCount        int
	QuizBestScores   []float64 // 仅包含已作答测验
	AssignmentCount  int
	AssignmentScores []float64 // 已批改作业的百分制得分
}

// ComputeEligibility 纯计算，不访问存储
func ComputeEligibility(p config.PolicyConfig, in EligibilityInput) Eligibility {
	var e Eligibility
	e.TotalVideos = in.TotalVideos
	e.WatchedVideos = in.WatchedVideos

	if in.TotalVideos == 0 {
		e.VideoProgress = 100
	} else {
		e.VideoProgress = util.Clamp(float64(in.WatchedVideos)/float64(in.TotalVideos)*100, 0, 100)
	}

	hasQuizzes := in.QuizCount > 0
	hasAssignments := in.AssignmentCount > 0
	if hasQuizzes {
		e.QuizScore = meanOver(in.QuizBestScores, in.QuizCount)
	}
	if hasAssignments {
		e.AssignmentScore = meanOver(in.AssignmentScores, in.AssignmentCount)
	}

	switch {
	case hasQuizzes && hasAssignments:
		total := p.QuizWeight + p.AssignmentWeight
		if total <= 0 {
			e.OverallScore = (e.QuizScore + e.AssignmentScore) / 2
		} else {
			e.OverallScore = (e.QuizScore*p.QuizWeight + e.AssignmentScore*p.AssignmentWeight) / total
		}
	case hasQuizzes:
		e.OverallScore = e.QuizScore
	case hasAssignments:
		e.OverallScore = e.AssignmentScore
	default:
		e.OverallScore = 100
	}

	e.VideoProgress = util.Round2(e.VideoProgress)
	e.QuizScore = util.Round2(e.QuizScore)
	e.AssignmentScore = util.Round2(e.AssignmentScore)
	e.OverallScore = util.Round2(util.Clamp(e.OverallScore, 0, 100))
	e.QuizzesUnlocked = e.VideoProgress >= p.QuizUnlockVideoProgress
	e.IsEligible = e.OverallScore >= p.CertificateMinScore && e.VideoProgress >= p.CertificateMinVideoProgress
	return e
}

// meanOver 分母为总数，缺失项按 0 计
func meanOver(scores []float64, count int) float64 {
	if count == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += util.Clamp(s, 0, 100)
	}
	return sum / float64(count)
}

// EligibilityCache 结果缓存，仅用于加速。
// 每次 Invalidate 递增版本号；Set 只在版本号未变时写入，计算期间发生的进度写入不会被旧结果覆盖
type EligibilityCache interface {
	Get(ctx context.Context, userID, courseID uint) (*Eligibility, bool)
	Version(ctx context.Context, userID, courseID uint) int64
	Set(ctx context.Context, e *Eligibility, ttl time.Duration, version int64)
	Invalidate(ctx context.Context, userID, courseID uint)
}

type noopEligibilityCache struct{}

func (noopEligibilityCache) Get(context.Context, uint, uint) (*Eligibility, bool)    { return nil, false }
func (noopEligibilityCache) Version(context.Context, uint, uint) int64              { return 0 }
func (noopEligibilityCache) Set(context.Context, *Eligibility, time.Duration, int64) {}
func (noopEligibilityCache) Invalidate(context.Context, uint, uint)                  {}

func NewNoopEligibilityCache() EligibilityCache {
	return noopEligibilityCache{}
}

type RedisEligibilityCache struct {
	Client *redis.Client
}

func NewRedisEligibilityCache(client *redis.Client) *RedisEligibilityCache {
	return &RedisEligibilityCache{Client: client}
}

func eligibilityKey(userID, courseID uint) string {
	return fmt.Sprintf("learnhub:eligibility:%d:%d", userID, courseID)
}

func eligibilityVersionKey(userID, courseID uint) string {
	return fmt.Sprintf("learnhub:eligibility:ver:%d:%d", userID, courseID)
}

// 版本号过期后视为 0
const eligibilityVersionTTL = 24 * time.Hour

// KEYS[1] 结果 KEYS[2] 版本号；ARGV: 期望版本、结果、ttl(ms)
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2]) or '0'
if v ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisEligibilityCache) Get(ctx context.Context, userID, courseID uint) (*Eligibility, bool) {
	raw, err := c.Client.Get(ctx, eligibilityKey(userID, courseID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("读取资格缓存失败", zap.Error(err))
		}
		return nil, false
	}
	var e Eligibility
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (c *RedisEligibilityCache) Version(ctx context.Context, userID, courseID uint) int64 {
	v, err := c.Client.Get(ctx, eligibilityVersionKey(userID, courseID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// 读不到版本号时返回 -1，本次不回写
		logger.Log.Warn("读取资格缓存版本失败", zap.Error(err))
		return -1
	}
	return v
}

func (c *RedisEligibilityCache) Set(ctx context.Context, e *Eligibility, ttl time.Duration, version int64) {
	if version < 0 {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	keys := []string{eligibilityKey(e.UserID, e.CourseID), eligibilityVersionKey(e.UserID, e.CourseID)}
	if err := setIfVersion.Run(ctx, c.Client, keys, strconv.FormatInt(version, 10), b, ttl.Milliseconds()).Err(); err != nil {
		logger.Log.Warn("写入资格缓存失败", zap.Error(err))
	}
}

func (c *RedisEligibilityCache) Invalidate(ctx context.Context, userID, courseID uint) {
	verKey := eligibilityVersionKey(userID, courseID)
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, eligibilityVersionTTL)
		pipe.Del(ctx, eligibilityKey(userID, courseID))
		return nil
	})
	if err != nil {
		logger.Log.Warn("清除资格缓存失败", zap.Error(err))
	}
}

type EligibilityService struct {
	CourseRepo     *repository.CourseRepository
	ProgressRepo   *repository.ProgressRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Policy         *PolicyHolder
	Cache          EligibilityCache
}

func NewEligibilityService(
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	policy *PolicyHolder,
	cache EligibilityCache,
) *EligibilityService {
	if cache == nil {
		cache = NewNoopEligibilityCache()
	}
	return &EligibilityService{
		CourseRepo:     courseRepo,
		ProgressRepo:   progressRepo,
		EnrollmentRepo: enrollmentRepo,
		Policy:         policy,
		Cache:          cache,
	}
}

// Evaluate 需要已报名；优先读缓存
func (s *EligibilityService) Evaluate(ctx context.Context, userID, courseID uint) (*Eligibility, error) {
	enrolled, err := s.EnrollmentRepo.Exists(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		if _, err := s.CourseRepo.FindByID(ctx, courseID); err != nil {
			return nil, notFound(err)
		}
		return nil, util.ErrNotEnrolled
	}

	if e, ok := s.Cache.Get(ctx, userID, courseID); ok {
		monitoring.EligibilityCache.WithLabelValues("hit").Inc()
		return e, nil
	}
	monitoring.EligibilityCache.WithLabelValues("miss").Inc()
	return s.Refresh(ctx, userID, courseID)
}

// Refresh 跳过缓存重新计算并回写；版本号在计算前读取
func (s *EligibilityService) Refresh(ctx context.Context, userID, courseID uint) (*Eligibility, error) {
	version := s.Cache.Version(ctx, userID, courseID)
	e, err := s.compute(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, e, s.Policy.Get().CacheTTL, version)
	return e, nil
}

func (s *EligibilityService) Invalidate(ctx context.Context, userID, courseID uint) {
	s.Cache.Invalidate(ctx, userID, courseID)
}

// RefreshAsync 支付完成等场景下后台刷新，失败只记录日志
func (s *EligibilityService) RefreshAsync(userID, courseID uint) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.Refresh(ctx, userID, courseID); err != nil {
			logger.Log.Warn("后台刷新证书资格失败",
				zap.Uint("userID", userID),
				zap.Uint("courseID", courseID),
				zap.Error(err))
		}
	}()
}

func (s *EligibilityService) compute(ctx context.Context, userID, courseID uint) (*Eligibility, error) {
	policy := s.Policy.Get()

	totalVideos, err := s.CourseRepo.CountVideos(ctx, courseID)
	if err != nil {
		return nil, err
	}
	watched, err := s.ProgressRepo.CountWatchedVideos(ctx, userID, courseID, policy.VideoCompletionPercent)
	if err != nil {
		return nil, err
	}

	quizzes, err := s.CourseRepo.ListQuizzes(ctx, courseID)
	if err != nil {
		return nil, err
	}
	best, err := s.ProgressRepo.BestQuizScores(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	quizScores := make([]float64, 0, len(quizzes))
	for _, q := range quizzes {
		if score, ok := best[q.ID]; ok {
			quizScores = append(quizScores, score)
		}
	}

	assignments, err := s.CourseRepo.ListAssignments(ctx, courseID)
	if err != nil {
		return nil, err
	}
	graded, err := s.ProgressRepo.ListGradedSubmissions(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	totalMarks := make(map[string]int, len(assignments))
	for _, a := range assignments {
		totalMarks[a.ID] = a.TotalMarks
	}
	assignmentScores := make([]float64, 0, len(graded))
	for _, sub := range graded {
		tm, ok := totalMarks[sub.AssignmentID]
		if !ok || tm <= 0 {
			continue
		}
		assignmentScores = append(assignmentScores, sub.Marks/float64(tm)*100)
	}

	e := ComputeEligibility(policy, EligibilityInput{
		TotalVideos:      int(totalVideos),
		WatchedVideos:    int(watched),
		QuizCount:        len(quizzes),
		QuizBestScores:   quizScores,
		AssignmentCount:  len(assignments),
		AssignmentScores: assignmentScores,
	})
	e.UserID = userID
	e.CourseID = courseID
	e.EvaluatedAt = time.Now()
	return &e, nil
}

// notFound 将 gorm 的未找到错误转换为业务错误
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}
