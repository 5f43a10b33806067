package model

import "time"

// Enrollment 已确认的购买，(user, course) 唯一
type Enrollment struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"userId"`
	CourseID      uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course;index" json:"courseId"`
	TransactionID string    `gorm:"size:64;not null;uniqueIndex" json:"transactionId"`
	PricePaid     int64     `gorm:"not null" json:"pricePaid"`
	EnrolledAt    time.Time `json:"enrolledAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// Certificate 已颁发的结业证书
type Certificate struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_certificate_user_course" json:"userId"`
	CourseID          uint      `gorm:"not null;uniqueIndex:idx_certificate_user_course;index" json:"courseId"`
	CertificateNumber string    `gorm:"size:40;not null;uniqueIndex" json:"certificateNumber"`
	OverallScore      float64   `json:"overallScore"`
	VideoProgress     float64   `json:"videoProgress"`
	IssuedAt          time.Time `json:"issuedAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}
