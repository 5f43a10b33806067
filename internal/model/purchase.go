package model

import (
	"time"

	"gorm.io/datatypes"
)

type PurchaseStatus string

const (
	PurchaseInitiated        PurchaseStatus = "INITIATED"
	PurchasePaymentPending   PurchaseStatus = "PAYMENT_PENDING"
	PurchasePaymentConfirmed PurchaseStatus = "PAYMENT_CONFIRMED"
	PurchaseEnrolled         PurchaseStatus = "ENROLLED"
	PurchaseFailed           PurchaseStatus = "FAILED"
)

// PurchaseAttempt 一次购买尝试，TransactionID 即网关订单号与幂等键
type PurchaseAttempt struct {
	UUIDBase
	UserID        uint           `gorm:"not null;index" json:"userId"`
	CourseID      uint           `gorm:"not null;index" json:"courseId"`
	TransactionID string         `gorm:"size:64;not null;uniqueIndex" json:"transactionId"`
	PromoCode     string         `gorm:"size:40" json:"promoCode,omitempty"`
	ListPrice     int64          `json:"listPrice"`
	Amount        int64          `json:"amount"`
	Currency      string         `gorm:"size:8" json:"currency"`
	Status        PurchaseStatus `gorm:"size:20;not null;index" json:"status"`
	GatewayToken  string         `gorm:"size:100" json:"gatewayToken,omitempty"`
	RedirectURL   string         `gorm:"size:500" json:"redirectUrl,omitempty"`
	FailureReason string         `gorm:"size:255" json:"failureReason,omitempty"`
	EnrollmentID  *uint          `json:"enrollmentId,omitempty"`
}

func (PurchaseAttempt) TableName() string {
	return "purchase_attempts"
}

// PaymentGatewayEvent 网关回调原始记录，便于人工重放
type PaymentGatewayEvent struct {
	ID                uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider          string         `gorm:"size:20;not null" json:"provider"`
	OrderID           string         `gorm:"size:64;index" json:"orderId"`
	TransactionStatus string         `gorm:"size:30" json:"transactionStatus"`
	FraudStatus       string         `gorm:"size:20" json:"fraudStatus"`
	GrossAmount       string         `gorm:"size:30" json:"grossAmount"`
	Payload           datatypes.JSON `json:"payload"`
	Status            string         `gorm:"size:20" json:"status"` // received / processed / ignored / failed
	Error             string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func (PaymentGatewayEvent) TableName() string {
	return "payment_gateway_events"
}

type PromoCode struct {
	BaseModel
	Code       string     `gorm:"size:40;not null;uniqueIndex" json:"code"`
	PercentOff int        `gorm:"not null" json:"percentOff"`
	MaxUses    int        `json:"maxUses"` // 0 表示不限次数
	UsedCount  int        `gorm:"not null" json:"usedCount"`
	ValidFrom  *time.Time `json:"validFrom"`
	ValidUntil *time.Time `json:"validUntil"`
	Active     bool       `gorm:"not null" json:"active"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}
