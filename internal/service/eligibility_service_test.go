package service

import (
	"context"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		QuizUnlockVideoProgress:     25,
		CertificateMinScore:         90,
		CertificateMinVideoProgress: 100,
		VideoCompletionPercent:      90,
		QuizWeight:                  0.5,
		AssignmentWeight:            0.5,
	}
}

func TestComputeEligibility_Weighted(t *testing.T) {
	e := ComputeEligibility(testPolicy(), EligibilityInput{
		TotalVideos:      4,
		WatchedVideos:    4,
		QuizCount:        2,
		QuizBestScores:   []float64{100, 80},
		AssignmentCount:  1,
		AssignmentScores: []float64{95},
	})
	assert.Equal(t, 100.0, e.VideoProgress)
	assert.Equal(t, 90.0, e.QuizScore)
	assert.Equal(t, 95.0, e.AssignmentScore)
	assert.Equal(t, 92.5, e.OverallScore)
	assert.True(t, e.QuizzesUnlocked)
	assert.True(t, e.IsEligible)
}

func TestComputeEligibility_MissingScoresCountAsZero(t *testing.T) {
	e := ComputeEligibility(testPolicy(), EligibilityInput{
		TotalVideos:     4,
		WatchedVideos:   4,
		QuizCount:       2,
		QuizBestScores:  []float64{100},
		AssignmentCount: 1,
	})
	assert.Equal(t, 50.0, e.QuizScore)
	assert.Equal(t, 0.0, e.AssignmentScore)
	assert.Equal(t, 25.0, e.OverallScore)
	assert.False(t, e.IsEligible)
}

func TestComputeEligibility_NoAssessments(t *testing.T) {
	e := ComputeEligibility(testPolicy(), EligibilityInput{TotalVideos: 3, WatchedVideos: 3})
	assert.Equal(t, 100.0, e.OverallScore)
	assert.True(t, e.IsEligible)

	e = ComputeEligibility(testPolicy(), EligibilityInput{})
	assert.Equal(t, 100.0, e.VideoProgress)
	assert.True(t, e.IsEligible)
}

func TestComputeEligibility_OnlyOneKind(t *testing.T) {
	e := ComputeEligibility(testPolicy(), EligibilityInput{
		TotalVideos: 1, WatchedVideos: 1,
		QuizCount: 1, QuizBestScores: []float64{70},
	})
	assert.Equal(t, 70.0, e.OverallScore)

	e = ComputeEligibility(testPolicy(), EligibilityInput{
		TotalVideos: 1, WatchedVideos: 1,
		AssignmentCount: 2, AssignmentScores: []float64{100, 90},
	})
	assert.Equal(t, 95.0, e.OverallScore)
	assert.True(t, e.IsEligible)
}

func TestComputeEligibility_VideoGates(t *testing.T) {
	e := ComputeEligibility(testPolicy(), EligibilityInput{TotalVideos: 4, WatchedVideos: 1})
	assert.Equal(t, 25.0, e.VideoProgress)
	assert.True(t, e.QuizzesUnlocked)
	assert.False(t, e.IsEligible, "video progress below 100 blocks the certificate")

	e = ComputeEligibility(testPolicy(), EligibilityInput{TotalVideos: 5, WatchedVideos: 1})
	assert.Equal(t, 20.0, e.VideoProgress)
	assert.False(t, e.QuizzesUnlocked)

	e = ComputeEligibility(testPolicy(), EligibilityInput{TotalVideos: 3, WatchedVideos: 1})
	assert.Equal(t, 33.33, e.VideoProgress)
}

func TestComputeEligibility_CustomWeights(t *testing.T) {
	p := testPolicy()
	p.QuizWeight, p.AssignmentWeight = 3, 1
	e := ComputeEligibility(p, EligibilityInput{
		QuizCount: 1, QuizBestScores: []float64{100},
		AssignmentCount: 1, AssignmentScores: []float64{60},
	})
	assert.Equal(t, 90.0, e.OverallScore)
}

func TestPolicyHolder_RejectsInvalid(t *testing.T) {
	h := NewPolicyHolder(testPolicy())
	bad := testPolicy()
	bad.CertificateMinScore = 200
	assert.Error(t, h.Set(bad))
	assert.Equal(t, 90.0, h.Get().CertificateMinScore)

	good := testPolicy()
	good.CertificateMinScore = 80
	require.NoError(t, h.Set(good))
	assert.Equal(t, 80.0, h.Get().CertificateMinScore)
}

// memoryEligibilityCache 记录调用，便于断言缓存行为
type memoryEligibilityCache struct {
	mu       sync.Mutex
	entries  map[[2]uint]*Eligibility
	versions map[[2]uint]int64
	sets     int
	// 在读取版本号之后调用，模拟计算期间的并发写入
	afterVersion func()
}

func newMemoryEligibilityCache() *memoryEligibilityCache {
	return &memoryEligibilityCache{entries: map[[2]uint]*Eligibility{}, versions: map[[2]uint]int64{}}
}

func (c *memoryEligibilityCache) Get(_ context.Context, userID, courseID uint) (*Eligibility, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[[2]uint{userID, courseID}]
	return e, ok
}

func (c *memoryEligibilityCache) Version(_ context.Context, userID, courseID uint) int64 {
	c.mu.Lock()
	v := c.versions[[2]uint{userID, courseID}]
	hook := c.afterVersion
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return v
}

func (c *memoryEligibilityCache) Set(_ context.Context, e *Eligibility, _ time.Duration, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := [2]uint{e.UserID, e.CourseID}
	if c.versions[key] != version {
		return
	}
	c.sets++
	c.entries[key] = e
}

func (c *memoryEligibilityCache) Invalidate(_ context.Context, userID, courseID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := [2]uint{userID, courseID}
	c.versions[key]++
	delete(c.entries, key)
}

func newEligibilityService(db *gorm.DB, cache EligibilityCache) *EligibilityService {
	return NewEligibilityService(
		repository.NewCourseRepository(db),
		repository.NewProgressRepository(db),
		repository.NewEnrollmentRepository(db),
		NewPolicyHolder(testPolicy()),
		cache,
	)
}

func TestEligibilityService_Evaluate(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "s@x.com", model.Student)
	course := testutil.CreateCourse(t, db, testutil.CourseSpec{Available: true, Modules: []int{2}})
	cache := newMemoryEligibilityCache()
	svc := newEligibilityService(db, cache)

	_, err := svc.Evaluate(ctx, user.ID, course.ID)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	_, err = svc.Evaluate(ctx, user.ID, 9999)
	assert.ErrorIs(t, err, util.ErrNotFound)

	testutil.Enroll(t, db, user.ID, course.ID)
	e, err := svc.Evaluate(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.TotalVideos)
	assert.Equal(t, 0.0, e.VideoProgress)
	assert.Equal(t, 1, cache.sets)

	// 命中缓存不再回写
	_, err = svc.Evaluate(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
}

func TestEligibilityService_RefreshDoesNotOverwriteNewerInvalidation(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "race@x.com", model.Student)
	course := testutil.CreateCourse(t, db, testutil.CourseSpec{Available: true, Modules: []int{2}})
	testutil.Enroll(t, db, user.ID, course.ID)
	cache := newMemoryEligibilityCache()
	svc := newEligibilityService(db, cache)

	// 计算期间发生进度写入并清除缓存
	cache.afterVersion = func() {
		cache.afterVersion = nil
		svc.Invalidate(ctx, user.ID, course.ID)
	}
	e, err := svc.Refresh(ctx, user.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.VideoProgress)

	_, ok := cache.Get(ctx, user.ID, course.ID)
	assert.False(t, ok, "stale result must not be cached")
	assert.Zero(t, cache.sets)

	// 没有并发写入时正常回写
	_, err = svc.Refresh(ctx, user.ID, course.ID)
	require.NoError(t, err)
	_, ok = cache.Get(ctx, user.ID, course.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, cache.sets)
}
