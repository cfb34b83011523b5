package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/exam_prep_server/internal/model"
)

var seq atomic.Int64

func nextSeq() int64 {
	return seq.Add(1)
}

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	user := &model.User{
		ID:                 fmt.Sprintf("user_%d_%d", time.Now().UnixNano(), n),
		Email:              fmt.Sprintf("test_%d@example.com", n),
		DisplayName:        fmt.Sprintf("Test User %d", n),
		SubscriptionStatus: model.SubscriptionInactive,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUserID 设置用户ID
func WithUserID(id string) func(*model.User) {
	return func(u *model.User) {
		u.ID = id
	}
}

// WithStatus 设置订阅状态
func WithStatus(status string) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionStatus = status
	}
}

// WithStripeCustomer 设置账单客户引用
func WithStripeCustomer(ref string) func(*model.User) {
	return func(u *model.User) {
		u.StripeCustomerID = &ref
	}
}

// SampleQuestions 生成 n 道题，分类按目标分布轮转，正确答案均为 A
func SampleQuestions(n int) []model.Question {
	categories := []string{
		model.CategorySafeCare,
		model.CategoryHealthPromotion,
		model.CategoryPsychosocial,
		model.CategoryPhysiological,
	}

	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			ID:       fmt.Sprintf("q%d", i+1),
			Category: categories[i%len(categories)],
			Question: fmt.Sprintf("Question %d?", i+1),
			Options: map[string]string{
				"A": "Option A",
				"B": "Option B",
				"C": "Option C",
				"D": "Option D",
			},
			CorrectAnswer: "A",
		}
	}
	return questions
}

// TestTest 创建测试记录
func TestTest(t *testing.T, db *gorm.DB, userID string, opts ...func(*model.Test)) *model.Test {
	t.Helper()

	test := &model.Test{
		UserID:    userID,
		Questions: datatypes.NewJSONSlice(SampleQuestions(4)),
		Answers:   datatypes.NewJSONType(model.AnswerMap{}),
	}

	for _, opt := range opts {
		opt(test)
	}

	if err := db.Create(test).Error; err != nil {
		t.Fatalf("Failed to create test: %v", err)
	}

	return test
}

// WithQuestions 设置题目
func WithQuestions(questions []model.Question) func(*model.Test) {
	return func(tt *model.Test) {
		tt.Questions = datatypes.NewJSONSlice(questions)
	}
}

// WithAnswers 设置已作答
func WithAnswers(answers model.AnswerMap) func(*model.Test) {
	return func(tt *model.Test) {
		tt.Answers = datatypes.NewJSONType(answers)
	}
}

// WithCompleted 设置为已完成
func WithCompleted(score int, createdAt, completedAt time.Time) func(*model.Test) {
	return func(tt *model.Test) {
		tt.Score = &score
		tt.CompletedAt = &completedAt
		tt.CreatedAt = createdAt
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(createdAt time.Time) func(*model.Test) {
	return func(tt *model.Test) {
		tt.CreatedAt = createdAt
	}
}

// TestPerformanceRecord 创建分类表现记录
func TestPerformanceRecord(t *testing.T, db *gorm.DB, userID, category string, correct, total int, date string) *model.PerformanceRecord {
	t.Helper()

	record := &model.PerformanceRecord{
		UserID:     userID,
		Category:   category,
		Correct:    correct,
		Total:      total,
		RecordDate: date,
	}

	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create performance record: %v", err)
	}

	return record
}

// TestUpload 创建上传记录
func TestUpload(t *testing.T, db *gorm.DB, userID string, opts ...func(*model.Upload)) *model.Upload {
	t.Helper()

	id := uuid.NewString()
	upload := &model.Upload{
		ID:            id,
		UserID:        userID,
		FileName:      "notes.txt",
		ObjectKey:     fmt.Sprintf("uploads/%s/%s.txt", userID, id),
		Size:          64,
		ContentType:   "text/plain",
		ExtractedText: "Hand hygiene is the single most effective infection control measure.",
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	}

	for _, opt := range opts {
		opt(upload)
	}

	if err := db.Create(upload).Error; err != nil {
		t.Fatalf("Failed to create upload: %v", err)
	}

	return upload
}

// WithExpiresAt 设置过期时间
func WithExpiresAt(expiresAt time.Time) func(*model.Upload) {
	return func(u *model.Upload) {
		u.ExpiresAt = expiresAt
	}
}

// TestUploadQuota 创建上传配额记录
func TestUploadQuota(t *testing.T, db *gorm.DB, userID string, used int) *model.UploadQuota {
	t.Helper()

	quota := &model.UploadQuota{
		UserID:      userID,
		UploadsUsed: used,
		LastResetAt: time.Now(),
	}

	if err := db.Create(quota).Error; err != nil {
		t.Fatalf("Failed to create upload quota: %v", err)
	}

	return quota
}
