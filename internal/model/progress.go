package model

import "time"

// VideoProgress 观看进度只增不减
type VideoProgress struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_progress_user_video;index:idx_progress_user_course" json:"userId"`
	VideoID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_progress_user_video" json:"videoId"`
	CourseID       uint      `gorm:"not null;index:idx_progress_user_course" json:"courseId"`
	WatchedPercent float64   `gorm:"not null" json:"watchedPercent"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (VideoProgress) TableName() string {
	return "video_progress"
}

type QuizAttempt struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_attempt_user_quiz" json:"userId"`
	QuizID    string    `gorm:"type:varchar(36);not null;index:idx_attempt_user_quiz" json:"quizId"`
	CourseID  uint      `gorm:"not null;index" json:"courseId"`
	Score     float64   `gorm:"not null" json:"score"`
	Passed    bool      `json:"passed"`
	CreatedAt time.Time `json:"createdAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

type SubmissionKind string

const (
	SubmissionFile SubmissionKind = "file"
	SubmissionLink SubmissionKind = "link"
	SubmissionText SubmissionKind = "text"
)

type SubmissionStatus string

const (
	SubmissionPending SubmissionStatus = "pending"
	SubmissionGraded  SubmissionStatus = "graded"
)

type AssignmentSubmission struct {
	ID           uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint             `gorm:"not null;uniqueIndex:idx_submission_user_assignment" json:"userId"`
	AssignmentID string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_user_assignment" json:"assignmentId"`
	CourseID     uint             `gorm:"not null;index" json:"courseId"`
	Kind         SubmissionKind   `gorm:"size:10;not null" json:"kind"`
	Content      string           `gorm:"type:text" json:"content"`
	Status       SubmissionStatus `gorm:"size:10;not null" json:"status"`
	Marks        float64          `json:"marks"`
	Feedback     string           `gorm:"type:text" json:"feedback"`
	GradedAt     *time.Time       `json:"gradedAt"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (AssignmentSubmission) TableName() string {
	return "assignment_submissions"
}
