package service

import (
	"context"
	"fmt"
	"io"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type VideoPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration int    `json:"duration"`
	Order    int    `json:"order"`
}

type ModulePayload struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Order  int            `json:"order"`
	Videos []VideoPayload `json:"videos"`
}

type QuizPayload struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	AfterModule  int                  `json:"afterModule"`
	PassingScore float64              `json:"passingScore"`
	Questions    []model.QuizQuestion `json:"questions"`
}

type AssignmentPayload struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AfterModule int        `json:"afterModule"`
	DueDate     *time.Time `json:"dueDate"`
	TotalMarks  int        `json:"totalMarks"`
}

// CoursePayload 创建与更新共用；指针字段为空表示不修改
type CoursePayload struct {
	Title              *string              `json:"title"`
	Description        *string              `json:"description"`
	ThumbnailURL       *string              `json:"thumbnailUrl"`
	Price              *int64               `json:"price"`
	OriginalPrice      *int64               `json:"originalPrice"`
	DiscountPercentage *int                 `json:"discountPercentage"`
	CertificateImage   *string              `json:"certificateImage"`
	Signatures         *model.Signatures    `json:"signatures"`
	IsAvailable        *bool                `json:"isAvailable"`
	Modules            *[]ModulePayload     `json:"modules"`
	Quizzes            *[]QuizPayload       `json:"quizzes"`
	Assignments        *[]AssignmentPayload `json:"assignments"`
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrValidation, fmt.Sprintf(format, args...))
}

// Validate creating=true 时要求标题
func (p *CoursePayload) Validate(creating bool) error {
	if creating && (p.Title == nil || strings.TrimSpace(*p.Title) == "") {
		return validationError("title is required")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return validationError("title cannot be empty")
	}
	if p.Price != nil && *p.Price < 0 {
		return validationError("price must be >= 0")
	}
	if p.OriginalPrice != nil && *p.OriginalPrice < 0 {
		return validationError("originalPrice must be >= 0")
	}
	if p.DiscountPercentage != nil && (*p.DiscountPercentage < 0 || *p.DiscountPercentage > 100) {
		return validationError("discountPercentage must be within [0,100]")
	}
	if p.Modules != nil {
		seen := map[string]bool{}
		for i, m := range *p.Modules {
			if strings.TrimSpace(m.Title) == "" {
				return validationError("modules[%d].title is required", i)
			}
			for j, v := range m.Videos {
				if strings.TrimSpace(v.Title) == "" {
					return validationError("modules[%d].videos[%d].title is required", i, j)
				}
				if v.Duration < 0 {
					return validationError("modules[%d].videos[%d].duration must be >= 0", i, j)
				}
				if v.ID != "" {
					if seen[v.ID] {
						return validationError("duplicate video id %s", v.ID)
					}
					seen[v.ID] = true
				}
			}
		}
	}
	if p.Quizzes != nil {
		for i, q := range *p.Quizzes {
			if strings.TrimSpace(q.Title) == "" {
				return validationError("quizzes[%d].title is required", i)
			}
			if q.PassingScore < 0 || q.PassingScore > 100 {
				return validationError("quizzes[%d].passingScore must be within [0,100]", i)
			}
			for k, question := range q.Questions {
				if question.Answer < 0 || question.Answer >= len(question.Options) {
					return validationError("quizzes[%d].questions[%d].answer out of range", i, k)
				}
			}
		}
	}
	if p.Assignments != nil {
		for i, a := range *p.Assignments {
			if strings.TrimSpace(a.Title) == "" {
				return validationError("assignments[%d].title is required", i)
			}
			if a.TotalMarks <= 0 {
				return validationError("assignments[%d].totalMarks must be > 0", i)
			}
		}
	}
	return nil
}

// EffectivePrice 服务端计算实际售价，不信任客户端传入的价格
func EffectivePrice(c *model.Course) int64 {
	base := c.OriginalPrice
	if base == 0 {
		base = c.Price
	}
	d := int64(c.DiscountPercentage)
	if d <= 0 {
		return base
	}
	if d >= 100 {
		return 0
	}
	return (base*(100-d) + 50) / 100
}

type CatalogService struct {
	CourseRepo *repository.CourseRepository
	Storage    *StorageService
	Cleanup    MediaCleanupQueue
}

func NewCatalogService(courseRepo *repository.CourseRepository, storage *StorageService, cleanup MediaCleanupQueue) *CatalogService {
	return &CatalogService{
		CourseRepo: courseRepo,
		Storage:    storage,
		Cleanup:    cleanup,
	}
}

func (s *CatalogService) GetCourse(ctx context.Context, id uint) (*model.Course, error) {
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return course, nil
}

func (s *CatalogService) ListCourses(ctx context.Context, onlyAvailable bool) ([]model.Course, error) {
	return s.CourseRepo.List(ctx, onlyAvailable)
}

func (s *CatalogService) CreateCourse(ctx context.Context, p *CoursePayload) (*model.Course, error) {
	if err := p.Validate(true); err != nil {
		return nil, err
	}
	course := &model.Course{}
	applyCoursePayload(course, p, nil)
	if err := s.CourseRepo.Create(ctx, course); err != nil {
		return nil, err
	}
	return s.GetCourse(ctx, course.ID)
}

// UpdateCourse 不再被引用的媒体异步投递到清理队列
func (s *CatalogService) UpdateCourse(ctx context.Context, id uint, p *CoursePayload) (*model.Course, error) {
	if err := p.Validate(false); err != nil {
		return nil, err
	}
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	before := course.MediaURLs()

	knownVideos := make(map[string]bool)
	for _, v := range model.FlattenVideos(course.Modules) {
		knownVideos[v.ID] = true
	}
	applyCoursePayload(course, p, knownVideos)

	if err := s.CourseRepo.Update(ctx, course, p.Modules != nil, p.Quizzes != nil, p.Assignments != nil); err != nil {
		return nil, err
	}

	if orphans := model.OrphanedURLs(before, course.MediaURLs()); len(orphans) > 0 {
		EnqueueMedia(s.Cleanup, "course_updated", orphans)
	}
	return s.GetCourse(ctx, id)
}

// DeleteCourse 数据库删除成功即视为成功，外部媒体清理尽力而为
func (s *CatalogService) DeleteCourse(ctx context.Context, id uint) error {
	course, err := s.CourseRepo.FindByID(ctx, id)
	if err != nil {
		return notFound(err)
	}
	urls := course.MediaURLs()
	if err := s.CourseRepo.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	EnqueueMedia(s.Cleanup, "course_deleted", urls)
	logger.Log.Info("课程已删除", zap.Uint("courseID", id), zap.Int("media", len(urls)))
	return nil
}

// applyCoursePayload knownVideos 为当前课程已有的视频 ID；回传的未知 ID 会被丢弃并重新生成
func applyCoursePayload(c *model.Course, p *CoursePayload, knownVideos map[string]bool) {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.ThumbnailURL != nil {
		c.ThumbnailURL = *p.ThumbnailURL
	}
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.OriginalPrice != nil {
		c.OriginalPrice = *p.OriginalPrice
	}
	if p.DiscountPercentage != nil {
		c.DiscountPercentage = *p.DiscountPercentage
	}
	if p.CertificateImage != nil {
		c.CertificateImage = *p.CertificateImage
	}
	if p.Signatures != nil {
		c.Signatures = datatypes.NewJSONType(*p.Signatures)
	}
	if p.IsAvailable != nil {
		c.IsAvailable = *p.IsAvailable
	}

	if p.Modules != nil {
		modules := make([]model.CourseModule, 0, len(*p.Modules))
		for _, mp := range *p.Modules {
			m := model.CourseModule{Title: strings.TrimSpace(mp.Title), Order: mp.Order}
			for _, vp := range mp.Videos {
				v := model.ModuleVideo{
					Title:    strings.TrimSpace(vp.Title),
					URL:      vp.URL,
					Duration: vp.Duration,
					Order:    vp.Order,
				}
				if vp.ID != "" && knownVideos[vp.ID] {
					v.ID = vp.ID
				}
				m.Videos = append(m.Videos, v)
			}
			modules = append(modules, m)
		}
		c.Modules = modules
	}

	if p.Quizzes != nil {
		quizzes := make([]model.Quiz, 0, len(*p.Quizzes))
		for _, qp := range *p.Quizzes {
			quizzes = append(quizzes, model.Quiz{
				UUIDBase:     model.UUIDBase{ID: keepID(qp.ID, c.Quizzes)},
				Title:        strings.TrimSpace(qp.Title),
				AfterModule:  qp.AfterModule,
				PassingScore: qp.PassingScore,
				Questions:    datatypes.NewJSONType(qp.Questions),
			})
		}
		c.Quizzes = quizzes
	}

	if p.Assignments != nil {
		assignments := make([]model.Assignment, 0, len(*p.Assignments))
		for _, ap := range *p.Assignments {
			id := ""
			for _, a := range c.Assignments {
				if a.ID == ap.ID {
					id = ap.ID
				}
			}
			assignments = append(assignments, model.Assignment{
				UUIDBase:    model.UUIDBase{ID: id},
				Title:       strings.TrimSpace(ap.Title),
				Description: ap.Description,
				AfterModule: ap.AfterModule,
				DueDate:     ap.DueDate,
				TotalMarks:  ap.TotalMarks,
			})
		}
		c.Assignments = assignments
	}
}

func keepID(id string, existing []model.Quiz) string {
	if id == "" {
		return ""
	}
	for _, q := range existing {
		if q.ID == id {
			return id
		}
	}
	return ""
}

// UploadResult 管理端上传结果
type UploadResult struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Duration    int    `json:"duration,omitempty"`
}

// UploadMedia 校验文件类型后上传；视频通过 ffprobe 获取时长
func (s *CatalogService) UploadMedia(ctx context.Context, fh *multipart.FileHeader) (*UploadResult, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mimeType, err := util.ValidateMimeType(f, []string{util.MimeVideo, util.MimeImage, util.MimePDF})
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	isVideo := util.IsVideo(mimeType)
	if isVideo && !util.HasExtension(fh.Filename, util.AllowedVideoExtensions) {
		return nil, util.ErrInvalidFileType
	}
	key := fmt.Sprintf("courses/%s/%s%s", time.Now().Format("200601"), uuid.New().String(), ext)

	if !isVideo {
		u, err := s.Storage.Upload(ctx, key, f, fh.Size, mimeType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrExternalService, err)
		}
		return &UploadResult{URL: u, ContentType: mimeType, Size: fh.Size}, nil
	}

	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, f); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	duration, err := util.ProbeVideoDuration(tmp.Name())
	if err != nil {
		logger.Log.Warn("视频时长探测失败", zap.String("file", fh.Filename), zap.Error(err))
	}
	u, err := s.Storage.UploadFile(ctx, key, tmp.Name(), mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrExternalService, err)
	}
	return &UploadResult{URL: u, ContentType: mimeType, Size: fh.Size, Duration: duration}, nil
}
