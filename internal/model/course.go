package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Signature 证书上的签名人
type Signature struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Signatures 角色 -> 签名人，例如 "instructor"、"director"
type Signatures map[string]Signature

// swagger:model Course
type Course struct {
	BaseModel
	Title              string                         `gorm:"size:200;not null" json:"title"`
	Description        string                         `gorm:"type:text" json:"description"`
	ThumbnailURL       string                         `gorm:"size:500" json:"thumbnailUrl"`
	Price              int64                          `gorm:"not null" json:"price"`
	OriginalPrice      int64                          `gorm:"not null" json:"originalPrice"`
	DiscountPercentage int                            `gorm:"not null" json:"discountPercentage"`
	CertificateImage   string                         `gorm:"size:500" json:"certificateImage"`
	Signatures         datatypes.JSONType[Signatures] `json:"signatures"`
	IsAvailable        bool                           `gorm:"not null;index" json:"isAvailable"`
	Modules            []CourseModule                 `gorm:"foreignKey:CourseID" json:"modules"`
	Quizzes            []Quiz                         `gorm:"foreignKey:CourseID" json:"quizzes"`
	Assignments        []Assignment                   `gorm:"foreignKey:CourseID" json:"assignments"`
}

func (Course) TableName() string {
	return "courses"
}

type CourseModule struct {
	UUIDBase
	CourseID uint          `gorm:"not null;index" json:"courseId"`
	Title    string        `gorm:"size:200;not null" json:"title"`
	Order    int           `gorm:"column:sort_order" json:"order"`
	Videos   []ModuleVideo `gorm:"foreignKey:ModuleID" json:"videos"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

type ModuleVideo struct {
	UUIDBase
	ModuleID string `gorm:"type:varchar(36);not null;index" json:"moduleId"`
	CourseID uint   `gorm:"not null;index" json:"courseId"`
	Title    string `gorm:"size:200;not null" json:"title"`
	URL      string `gorm:"size:500" json:"url"`
	Duration int    `json:"duration"` // 秒
	Order    int    `gorm:"column:sort_order" json:"order"`
}

func (ModuleVideo) TableName() string {
	return "module_videos"
}

type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

type Quiz struct {
	UUIDBase
	CourseID     uint                               `gorm:"not null;index" json:"courseId"`
	Title        string                             `gorm:"size:200;not null" json:"title"`
	AfterModule  int                                `json:"afterModule"`
	PassingScore float64                            `json:"passingScore"`
	Questions    datatypes.JSONType[[]QuizQuestion] `json:"questions"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// PublicQuestion 学员可见的题目，不含答案
type PublicQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// PublicQuiz 课程详情中对学员展示的测验
type PublicQuiz struct {
	ID           string           `json:"id"`
	CourseID     uint             `json:"courseId"`
	Title        string           `json:"title"`
	AfterModule  int              `json:"afterModule"`
	PassingScore float64          `json:"passingScore"`
	Questions    []PublicQuestion `json:"questions"`
}

func (q Quiz) Public() PublicQuiz {
	src := q.Questions.Data()
	questions := make([]PublicQuestion, 0, len(src))
	for _, item := range src {
		questions = append(questions, PublicQuestion{Question: item.Question, Options: item.Options})
	}
	return PublicQuiz{
		ID:           q.ID,
		CourseID:     q.CourseID,
		Title:        q.Title,
		AfterModule:  q.AfterModule,
		PassingScore: q.PassingScore,
		Questions:    questions,
	}
}

func PublicQuizzes(quizzes []Quiz) []PublicQuiz {
	out := make([]PublicQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, q.Public())
	}
	return out
}

type Assignment struct {
	UUIDBase
	CourseID    uint       `gorm:"not null;index" json:"courseId"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	AfterModule int        `json:"afterModule"`
	DueDate     *time.Time `json:"dueDate"`
	TotalMarks  int        `gorm:"not null" json:"totalMarks"`
}

func (Assignment) TableName() string {
	return "assignments"
}

// FlattenVideos 按模块顺序、模块内视频顺序展开全部视频。
// 视频列表不落库，每次读取时由模块树推导
func FlattenVideos(modules []CourseModule) []ModuleVideo {
	sorted := make([]CourseModule, len(modules))
	copy(sorted, modules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	videos := make([]ModuleVideo, 0)
	for _, m := range sorted {
		vs := make([]ModuleVideo, len(m.Videos))
		copy(vs, m.Videos)
		sort.SliceStable(vs, func(i, j int) bool { return vs[i].Order < vs[j].Order })
		videos = append(videos, vs...)
	}
	return videos
}

// MediaURLs 课程引用的全部外部媒体
func (c *Course) MediaURLs() []string {
	var urls []string
	if c.ThumbnailURL != "" {
		urls = append(urls, c.ThumbnailURL)
	}
	if c.CertificateImage != "" {
		urls = append(urls, c.CertificateImage)
	}
	for _, v := range FlattenVideos(c.Modules) {
		if v.URL != "" {
			urls = append(urls, v.URL)
		}
	}
	return urls
}

// OrphanedURLs 返回 before 中存在而 after 中不再引用的 URL
func OrphanedURLs(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	seen := make(map[string]struct{})
	var orphans []string
	for _, u := range before {
		if _, ok := keep[u]; ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		orphans = append(orphans, u)
	}
	return orphans
}
