// Package testutil 测试共用的内存数据库与数据构造
package testutil

import (
	"context"
	"fmt"
	"learnhub_backend/internal/model"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB 每个测试独立的内存 sqlite，已完成迁移。单连接，事务天然串行
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, email string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{Name: strings.Split(email, "@")[0], Email: email, Password: "x", Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CourseSpec 描述测试课程的结构
type CourseSpec struct {
	Title              string
	Price              int64
	OriginalPrice      int64
	DiscountPercentage int
	Available          bool
	ThumbnailURL       string
	// 每个模块的视频数
	Modules     []int
	Quizzes     int
	Assignments []int // 各作业总分
}

// CreateCourse 直接写库，绕过 CatalogService 的校验
func CreateCourse(t testing.TB, db *gorm.DB, spec CourseSpec) *model.Course {
	t.Helper()
	if spec.Title == "" {
		spec.Title = "Go 并发编程"
	}
	c := &model.Course{
		Title:              spec.Title,
		Price:              spec.Price,
		OriginalPrice:      spec.OriginalPrice,
		DiscountPercentage: spec.DiscountPercentage,
		IsAvailable:        spec.Available,
		ThumbnailURL:       spec.ThumbnailURL,
	}
	require.NoError(t, db.Omit("Modules", "Quizzes", "Assignments").Create(c).Error)

	for i, n := range spec.Modules {
		m := model.CourseModule{CourseID: c.ID, Title: fmt.Sprintf("模块 %d", i+1), Order: i}
		require.NoError(t, db.Omit("Videos").Create(&m).Error)
		for j := 0; j < n; j++ {
			v := model.ModuleVideo{
				ModuleID: m.ID,
				CourseID: c.ID,
				Title:    fmt.Sprintf("视频 %d-%d", i+1, j+1),
				URL:      fmt.Sprintf("/uploads/courses/%d/%d-%d.mp4", c.ID, i, j),
				Duration: 60,
				Order:    j,
			}
			require.NoError(t, db.Create(&v).Error)
			m.Videos = append(m.Videos, v)
		}
		c.Modules = append(c.Modules, m)
	}
	for i := 0; i < spec.Quizzes; i++ {
		q := model.Quiz{
			CourseID:     c.ID,
			Title:        fmt.Sprintf("测验 %d", i+1),
			AfterModule:  i,
			PassingScore: 60,
			Questions: datatypes.NewJSONType([]model.QuizQuestion{
				{Question: "1+1", Options: []string{"1", "2"}, Answer: 1},
				{Question: "2+2", Options: []string{"4", "5"}, Answer: 0},
			}),
		}
		require.NoError(t, db.Create(&q).Error)
		c.Quizzes = append(c.Quizzes, q)
	}
	for i, marks := range spec.Assignments {
		a := model.Assignment{CourseID: c.ID, Title: fmt.Sprintf("作业 %d", i+1), AfterModule: i, TotalMarks: marks}
		require.NoError(t, db.Create(&a).Error)
		c.Assignments = append(c.Assignments, a)
	}
	return c
}

func Enroll(t testing.TB, db *gorm.DB, userID, courseID uint) *model.Enrollment {
	t.Helper()
	e := &model.Enrollment{
		UserID:        userID,
		CourseID:      courseID,
		TransactionID: fmt.Sprintf("TEST-%d-%d", userID, courseID),
	}
	require.NoError(t, db.WithContext(context.Background()).Create(e).Error)
	return e
}
