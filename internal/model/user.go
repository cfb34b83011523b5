package model

import (
	"time"

	"gorm.io/datatypes"
)

// 订阅状态，仅由订阅状态机写入
const (
	SubscriptionInactive  = "inactive"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

type User struct {
	ID                 string            `gorm:"primaryKey;size:128" json:"id"`
	Email              string            `gorm:"size:255" json:"email"`
	DisplayName        string            `gorm:"size:100" json:"display_name"`
	SubscriptionStatus string            `gorm:"size:20;not null;default:inactive" json:"subscription_status"`
	StripeCustomerID   *string           `gorm:"column:stripe_customer_id;size:100;uniqueIndex" json:"-"`
	Preferences        datatypes.JSONMap `json:"preferences,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsSubscribed 是否拥有有效订阅
func (u *User) IsSubscribed() bool {
	return u.SubscriptionStatus == SubscriptionActive
}
