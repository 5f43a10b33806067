package model

import "time"

// MediaCleanupDeadLetter 多次重试后仍删除失败的外部媒体
type MediaCleanupDeadLetter struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	URL       string    `gorm:"size:1000;not null" json:"url"`
	Reason    string    `gorm:"size:50" json:"reason"`
	Attempts  int       `json:"attempts"`
	LastError string    `gorm:"type:text" json:"lastError"`
	CreatedAt time.Time `json:"createdAt"`
}

func (MediaCleanupDeadLetter) TableName() string {
	return "media_cleanup_dead_letters"
}

// AllModels 自动迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&CourseModule{},
		&ModuleVideo{},
		&Quiz{},
		&Assignment{},
		&Enrollment{},
		&Certificate{},
		&VideoProgress{},
		&QuizAttempt{},
		&AssignmentSubmission{},
		&PurchaseAttempt{},
		&PaymentGatewayEvent{},
		&PromoCode{},
		&AmbassadorProfile{},
		&ReferralSignup{},
		&RewardItem{},
		&RedemptionHistory{},
		&MediaCleanupDeadLetter{},
	}
}
