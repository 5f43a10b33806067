package service

import (
	"context"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"net/url"
	"strings"
)

type ProgressService struct {
	CourseRepo     *repository.CourseRepository
	ProgressRepo   *repository.ProgressRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Eligibility    *EligibilityService
}

func NewProgressService(
	courseRepo *repository.CourseRepository,
	progressRepo *repository.ProgressRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	eligibility *EligibilityService,
) *ProgressService {
	return &ProgressService{
		CourseRepo:     courseRepo,
		ProgressRepo:   progressRepo,
		EnrollmentRepo: enrollmentRepo,
		Eligibility:    eligibility,
	}
}

func (s *ProgressService) requireEnrollment(ctx context.Context, userID, courseID uint) error {
	ok, err := s.EnrollmentRepo.Exists(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrNotEnrolled
	}
	return nil
}

// RecordVideoWatch percent 为空时视为看完；返回写入后的资格快照
func (s *ProgressService) RecordVideoWatch(ctx context.Context, userID, courseID uint, videoID string, percent *float64) (*Eligibility, error) {
	p := 100.0
	if percent != nil {
		p = *percent
	}
	if p < 0 || p > 100 {
		return nil, fmt.Errorf("%w: watched percent must be within [0,100]", util.ErrValidation)
	}
	if err := s.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}
	if _, err := s.CourseRepo.FindVideo(ctx, courseID, videoID); err != nil {
		return nil, notFound(err)
	}

	if err := s.ProgressRepo.RecordVideoWatch(ctx, userID, courseID, videoID, p); err != nil {
		return nil, err
	}
	s.Eligibility.Invalidate(ctx, userID, courseID)
	return s.Eligibility.Refresh(ctx, userID, courseID)
}

// QuizSubmission 有题目的测验提交答案由服务端判分，无题目的测验（线下测验）才接受分数
type QuizSubmission struct {
	Score   *float64 `json:"score"`
	Answers []int    `json:"answers"`
}

type QuizAttemptResult struct {
	Attempt   *model.QuizAttempt `json:"attempt"`
	BestScore float64            `json:"bestScore"`
}

func scoreAnswers(questions []model.QuizQuestion, answers []int) float64 {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.Answer {
			correct++
		}
	}
	return float64(correct) / float64(len(questions)) * 100
}

func (s *ProgressService) RecordQuizAttempt(ctx context.Context, userID uint, quizID string, sub QuizSubmission) (*QuizAttemptResult, error) {
	quiz, err := s.CourseRepo.FindQuiz(ctx, quizID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.requireEnrollment(ctx, userID, quiz.CourseID); err != nil {
		return nil, err
	}

	var score float64
	questions := quiz.Questions.Data()
	switch {
	case len(questions) > 0:
		// 有题目的测验只能由服务端判分
		if sub.Score != nil {
			return nil, fmt.Errorf("%w: score is graded from answers for this quiz", util.ErrValidation)
		}
		if len(sub.Answers) == 0 {
			return nil, fmt.Errorf("%w: answers required", util.ErrValidation)
		}
		score = scoreAnswers(questions, sub.Answers)
	case sub.Score != nil:
		score = *sub.Score
	default:
		return nil, fmt.Errorf("%w: score required", util.ErrValidation)
	}
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("%w: score must be within [0,100]", util.ErrValidation)
	}

	e, err := s.Eligibility.Refresh(ctx, userID, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	if !e.QuizzesUnlocked {
		return nil, util.ErrQuizLocked
	}

	attempt := &model.QuizAttempt{
		UserID:   userID,
		QuizID:   quiz.ID,
		CourseID: quiz.CourseID,
		Score:    util.Round2(score),
		Passed:   score >= quiz.PassingScore,
	}
	if err := s.ProgressRepo.CreateQuizAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	s.Eligibility.Invalidate(ctx, userID, quiz.CourseID)

	best, err := s.ProgressRepo.BestQuizScore(ctx, userID, quiz.ID)
	if err != nil {
		return nil, err
	}
	return &QuizAttemptResult{Attempt: attempt, BestScore: best}, nil
}

// SubmissionPayload 作业提交，kind 决定 content 的含义
type SubmissionPayload struct {
	Kind    model.SubmissionKind `json:"kind" binding:"required"`
	Content string               `json:"content" binding:"required"`
}

func (p SubmissionPayload) Validate() error {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return fmt.Errorf("%w: content is required", util.ErrValidation)
	}
	switch p.Kind {
	case model.SubmissionText:
		return nil
	case model.SubmissionFile, model.SubmissionLink:
		u, err := url.Parse(content)
		if err != nil || (u.Scheme == "" && !strings.HasPrefix(content, "/")) {
			return fmt.Errorf("%w: %s submission must be a URL", util.ErrValidation, p.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown submission kind %q", util.ErrValidation, p.Kind)
	}
}

func (s *ProgressService) SubmitAssignment(ctx context.Context, userID uint, assignmentID string, payload SubmissionPayload) (*model.AssignmentSubmission, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	assignment, err := s.CourseRepo.FindAssignment(ctx, assignmentID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.requireEnrollment(ctx, userID, assignment.CourseID); err != nil {
		return nil, err
	}

	sub := &model.AssignmentSubmission{
		UserID:       userID,
		AssignmentID: assignment.ID,
		CourseID:     assignment.CourseID,
		Kind:         payload.Kind,
		Content:      strings.TrimSpace(payload.Content),
		Status:       model.SubmissionPending,
	}
	saved, err := s.ProgressRepo.SaveSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, util.ErrAlreadyGraded
	}
	s.Eligibility.Invalidate(ctx, userID, assignment.CourseID)
	return s.ProgressRepo.FindSubmission(ctx, userID, assignment.ID)
}

// GradeSubmission 管理员批改，分数不得超过作业总分
func (s *ProgressService) GradeSubmission(ctx context.Context, submissionID uint, marks float64, feedback string) (*model.AssignmentSubmission, error) {
	sub, err := s.ProgressRepo.FindSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, notFound(err)
	}
	assignment, err := s.CourseRepo.FindAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return nil, notFound(err)
	}
	if marks < 0 || marks > float64(assignment.TotalMarks) {
		return nil, fmt.Errorf("%w: marks must be within [0,%d]", util.ErrValidation, assignment.TotalMarks)
	}

	ok, err := s.ProgressRepo.GradeSubmission(ctx, submissionID, marks, feedback)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.ErrAlreadyGraded
	}
	s.Eligibility.Invalidate(ctx, sub.UserID, sub.CourseID)
	s.Eligibility.RefreshAsync(sub.UserID, sub.CourseID)
	return s.ProgressRepo.FindSubmissionByID(ctx, submissionID)
}

type CourseProgress struct {
	Videos      []model.VideoProgress `json:"videos"`
	Eligibility *Eligibility          `json:"eligibility"`
}

// GetCourseProgress 课程详情页的学习面板
func (s *ProgressService) GetCourseProgress(ctx context.Context, userID, courseID uint) (*CourseProgress, error) {
	e, err := s.Eligibility.Evaluate(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	videos, err := s.ProgressRepo.ListVideoProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	return &CourseProgress{Videos: videos, Eligibility: e}, nil
}
