package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/pkg/database"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "controller-test-secret"

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Retryable bool            `json:"retryable"`
}

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.JWT.ExpireTime = time.Hour
	policy := service.NewPolicyHolder(config.PolicyConfig{
		QuizUnlockVideoProgress:     25,
		CertificateMinScore:         90,
		CertificateMinVideoProgress: 100,
		VideoCompletionPercent:      90,
		QuizWeight:                  0.5,
		AssignmentWeight:            0.5,
	})

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)

	eligibility := service.NewEligibilityService(courseRepo, progressRepo, enrollmentRepo, policy, nil)
	enrollments := service.NewEnrollmentService(enrollmentRepo)
	progress := service.NewProgressService(courseRepo, progressRepo, enrollmentRepo, eligibility)
	catalog := service.NewCatalogService(courseRepo, nil, service.NewMemoryCleanupQueue(16))
	checkout := service.NewCheckoutService(repository.NewPurchaseRepository(db), courseRepo, userRepo, enrollments, eligibility,
		service.NewMidtransGateway("unused", false), "IDR", time.Second)
	ambassadors := service.NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)

	health := NewHealthController(database.NewStatusMonitor(db, time.Hour))
	auth := NewAuthController(service.NewAuthService(userRepo, ambassadors, cfg))
	courses := NewCourseController(catalog, enrollments, progress)
	admin := NewAdminCourseController(catalog, progress)
	checkoutCtl := NewCheckoutController(checkout, enrollments)
	progressCtl := NewProgressController(progress, eligibility, service.NewCertificateService(enrollmentRepo, eligibility))
	ambassadorCtl := NewAmbassadorController(ambassadors)

	r := gin.New()
	r.GET("/api/health", health.HealthCheck)
	r.POST("/api/register", auth.Register)
	r.POST("/api/login", auth.Login)
	optional := r.Group("/api", middleware.OptionalAuthMiddleware(testSecret))
	optional.GET("/courses", courses.ListCourses)
	optional.GET("/courses/:id", courses.GetCourse)

	api := r.Group("/api", middleware.AuthMiddleware(testSecret))
	api.GET("/me", auth.Me)
	api.POST("/courses/enroll", checkoutCtl.Enroll)
	api.GET("/enrollments", checkoutCtl.ListEnrollments)
	api.POST("/courses/:id/videos/:videoId/watch", progressCtl.WatchVideo)
	api.GET("/courses/:id/certificate-eligibility", progressCtl.GetEligibility)
	api.POST("/ambassador/register", ambassadorCtl.Apply)
	api.GET("/ambassador/profile", ambassadorCtl.Profile)

	adminGroup := r.Group("/api/admin", middleware.AuthMiddleware(testSecret), middleware.RoleMiddleware(model.Admin))
	adminGroup.POST("/courses", admin.CreateCourse)

	return &testServer{db: db, router: r}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

// login 注册并登录，返回 token
func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	code, _ := s.do(t, http.MethodPost, "/api/register", "", gin.H{"name": "tester", "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "flow@x.com")

	code, env := s.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	var me model.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "flow@x.com", me.Email)

	code, _ = s.do(t, http.MethodPost, "/api/register", "", gin.H{"name": "again", "email": "flow@x.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "flow@x.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCourseBrowseAndFreeEnrollment(t *testing.T) {
	s := newTestServer(t)
	course := testutil.CreateCourse(t, s.db, testutil.CourseSpec{Available: true, Modules: []int{2, 2}})
	testutil.CreateCourse(t, s.db, testutil.CourseSpec{Title: "草稿", Available: false})
	token := s.login(t, "learner@x.com")

	code, env := s.do(t, http.MethodGet, "/api/courses", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []CourseSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, course.ID, list[0].ID)

	path := fmt.Sprintf("/api/courses/%d", course.ID)
	code, env = s.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Videos   []model.ModuleVideo `json:"videos"`
		Enrolled bool                `json:"enrolled"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.Videos, 4)
	assert.False(t, detail.Enrolled)

	code, _ = s.do(t, http.MethodGet, "/api/courses/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodGet, "/api/courses/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// 免费课程直接报名
	code, _ = s.do(t, http.MethodPost, "/api/courses/enroll", token, gin.H{"courseId": course.ID})
	require.Equal(t, http.StatusCreated, code)
	code, env = s.do(t, http.MethodPost, "/api/courses/enroll", token, gin.H{"courseId": course.ID})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Retryable)

	code, env = s.do(t, http.MethodGet, "/api/enrollments", token, nil)
	require.Equal(t, http.StatusOK, code)
	var enrollments []model.Enrollment
	require.NoError(t, json.Unmarshal(env.Data, &enrollments))
	assert.Len(t, enrollments, 1)

	watch := fmt.Sprintf("/api/courses/%d/videos/%s/watch", course.ID, detail.Videos[0].ID)
	code, env = s.do(t, http.MethodPost, watch, token, gin.H{"percent": 100})
	require.Equal(t, http.StatusOK, code)
	var e service.Eligibility
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, 25.0, e.VideoProgress)

	code, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d/certificate-eligibility", course.ID), token, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.False(t, e.IsEligible)
}

func TestWatchRequiresEnrollment(t *testing.T) {
	s := newTestServer(t)
	course := testutil.CreateCourse(t, s.db, testutil.CourseSpec{Available: true, Modules: []int{1}})
	token := s.login(t, "visitor@x.com")

	path := fmt.Sprintf("/api/courses/%d/videos/%s/watch", course.ID, course.Modules[0].Videos[0].ID)
	code, _ := s.do(t, http.MethodPost, path, token, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "student@x.com")

	code, _ := s.do(t, http.MethodPost, "/api/admin/courses", token, gin.H{"title": "x"})
	assert.Equal(t, http.StatusForbidden, code)

	require.NoError(t, s.db.Model(&model.User{}).Where("email = ?", "student@x.com").Update("role", model.Admin).Error)
	// 角色写在 token 中，需要重新登录
	code, env := s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "student@x.com", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	code, _ = s.do(t, http.MethodPost, "/api/admin/courses", data.Token, gin.H{"title": "Rust 入门", "price": 0})
	assert.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/admin/courses", data.Token, gin.H{"price": -1})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAmbassadorApply(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "amb@x.com")

	code, env := s.do(t, http.MethodGet, "/api/ambassador/profile", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"NONE"`)

	app := gin.H{"college": "UI", "motivation": "teach", "resumeKind": "link", "resumeUrl": "https://example.com/cv"}
	code, _ = s.do(t, http.MethodPost, "/api/ambassador/register", token, app)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/ambassador/register", token, app)
	assert.Equal(t, http.StatusConflict, code)
}

func TestCourseViewsHideQuizAnswers(t *testing.T) {
	s := newTestServer(t)
	course := testutil.CreateCourse(t, s.db, testutil.CourseSpec{Available: true, Modules: []int{1}, Quizzes: 1})
	token := s.login(t, "peek@x.com")

	for _, tok := range []string{"", token} {
		code, env := s.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d", course.ID), tok, nil)
		require.Equal(t, http.StatusOK, code)
		assert.NotContains(t, string(env.Data), `"answer"`)

		var detail struct {
			Quizzes []model.PublicQuiz `json:"quizzes"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &detail))
		require.Len(t, detail.Quizzes, 1)
		require.Len(t, detail.Quizzes[0].Questions, 2)
		assert.Equal(t, "1+1", detail.Quizzes[0].Questions[0].Question)
	}

	code, env := s.do(t, http.MethodGet, "/api/courses", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), `"answer"`)
}
