package model

import (
	"time"

	"gorm.io/datatypes"
)

// 测试的派生状态，不落库
const (
	TestStatusCreated    = "created"
	TestStatusInProgress = "in_progress"
	TestStatusCompleted  = "completed"
	TestStatusAbandoned  = "abandoned"
)

// Question 单道选择题，options 的 key 为选项字母
type Question struct {
	ID            string            `json:"id"`
	Category      string            `json:"category"`
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation,omitempty"`
}

// AnswerMap 题目ID -> 所选选项字母
type AnswerMap map[string]string

type Test struct {
	ID          int64                         `gorm:"primaryKey" json:"id"`
	UserID      string                        `gorm:"size:128;index;not null" json:"user_id"`
	UploadID    *string                       `gorm:"size:36;index" json:"upload_id,omitempty"`
	Questions   datatypes.JSONSlice[Question] `gorm:"not null" json:"questions"`
	Answers     datatypes.JSONType[AnswerMap] `gorm:"not null" json:"answers"`
	Score       *int                          `json:"score,omitempty"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Abandoned   bool                          `gorm:"default:false" json:"abandoned"`
	Version     int                           `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time                     `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

func (Test) TableName() string {
	return "tests"
}

// AnswerSet 返回已作答映射，从不返回 nil
func (t *Test) AnswerSet() AnswerMap {
	answers := t.Answers.Data()
	if answers == nil {
		return AnswerMap{}
	}
	return answers
}

func (t *Test) IsCompleted() bool {
	return t.CompletedAt != nil
}

func (t *Test) Status() string {
	switch {
	case t.CompletedAt != nil && t.Abandoned:
		return TestStatusAbandoned
	case t.CompletedAt != nil:
		return TestStatusCompleted
	case len(t.AnswerSet()) > 0:
		return TestStatusInProgress
	default:
		return TestStatusCreated
	}
}

// FindQuestion 按 ID 查找题目
func (t *Test) FindQuestion(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
