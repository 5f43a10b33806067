package model

import "time"

type AmbassadorStatus string

const (
	AmbassadorNone     AmbassadorStatus = "NONE"
	AmbassadorPending  AmbassadorStatus = "PENDING"
	AmbassadorActive   AmbassadorStatus = "ACTIVE"
	AmbassadorRejected AmbassadorStatus = "REJECTED"
)

type ResumeKind string

const (
	ResumeFile ResumeKind = "file"
	ResumeLink ResumeKind = "link"
)

type AmbassadorProfile struct {
	ID           uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint             `gorm:"not null;uniqueIndex" json:"userId"`
	Status       AmbassadorStatus `gorm:"size:10;not null" json:"status"`
	ReferralCode *string          `gorm:"size:16;uniqueIndex" json:"referralCode"`
	SignupCount  int              `gorm:"not null" json:"signupCount"`
	Points       int              `gorm:"not null" json:"points"`
	College      string           `gorm:"size:200" json:"college"`
	Motivation   string           `gorm:"type:text" json:"motivation"`
	ResumeKind   ResumeKind       `gorm:"size:10" json:"resumeKind"`
	ResumeURL    string           `gorm:"size:500" json:"resumeUrl"`
	ReviewedAt   *time.Time       `json:"reviewedAt"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (AmbassadorProfile) TableName() string {
	return "ambassador_profiles"
}

// ReferralSignup 每个被推荐用户只计一次
type ReferralSignup struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	AmbassadorID   uint      `gorm:"not null;index" json:"ambassadorId"`
	ReferredUserID uint      `gorm:"not null;uniqueIndex" json:"referredUserId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (ReferralSignup) TableName() string {
	return "referral_signups"
}

type RewardKind string

const (
	RewardMerch   RewardKind = "merch"
	RewardVirtual RewardKind = "virtual"
)

type RewardItem struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string     `gorm:"size:100;not null;uniqueIndex" json:"name" yaml:"name"`
	Kind      RewardKind `gorm:"size:10;not null" json:"kind" yaml:"kind"`
	Cost      int        `gorm:"not null" json:"cost" yaml:"cost"`
	Active    bool       `gorm:"not null" json:"active" yaml:"-"`
	CreatedAt time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time  `json:"updatedAt" yaml:"-"`
}

func (RewardItem) TableName() string {
	return "reward_items"
}

type RedemptionStatus string

const (
	RedemptionPending  RedemptionStatus = "pending"
	RedemptionShipped  RedemptionStatus = "shipped"
	RedemptionApproved RedemptionStatus = "approved"
	RedemptionRejected RedemptionStatus = "rejected"
)

// RedemptionHistory 虚拟奖励的 ClaimKey 为奖励 ID，保证重复领取只返回同一条记录
type RedemptionHistory struct {
	ID              uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	AmbassadorID    uint             `gorm:"not null;uniqueIndex:idx_redemption_claim" json:"ambassadorId"`
	ClaimKey        string           `gorm:"size:64;not null;uniqueIndex:idx_redemption_claim" json:"-"`
	RewardItemID    uint             `gorm:"not null;index" json:"rewardItemId"`
	RewardName      string           `gorm:"size:100" json:"rewardName"`
	Kind            RewardKind       `gorm:"size:10;not null" json:"kind"`
	Cost            int              `gorm:"not null" json:"cost"`
	Status          RedemptionStatus `gorm:"size:10;not null" json:"status"`
	ShippingAddress string           `gorm:"type:text" json:"shippingAddress,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

func (RedemptionHistory) TableName() string {
	return "redemption_history"
}
