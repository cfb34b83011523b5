package model

import "time"

type Upload struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:128;index;not null" json:"user_id"`
	FileName      string    `gorm:"size:255" json:"file_name"`
	ObjectKey     string    `gorm:"size:500;not null" json:"object_key"`
	Size          int64     `json:"size"`
	ContentType   string    `gorm:"size:100" json:"content_type"`
	ExtractedText string    `gorm:"type:text" json:"-"`
	ExpiresAt     time.Time `gorm:"index" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Upload) TableName() string {
	return "uploads"
}

// UploadQuota 免费用户已消耗的上传次数，首次上传时惰性创建
type UploadQuota struct {
	UserID      string    `gorm:"primaryKey;size:128" json:"user_id"`
	UploadsUsed int       `gorm:"not null;default:0" json:"uploads_used"`
	LastResetAt time.Time `json:"last_reset_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (UploadQuota) TableName() string {
	return "upload_quotas"
}
