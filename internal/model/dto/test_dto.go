package dto

import "time"

// StartTestRequest 开始测试请求，upload_id 为空时生成通用练习题
type StartTestRequest struct {
	UploadID *string `json:"upload_id,omitempty"`
	Count    int     `json:"count,omitempty" binding:"omitempty,min=1,max=150"`
}

// QuestionView 返回给前端的题目，作答前不包含正确答案
type QuestionView struct {
	ID            string            `json:"id"`
	Category      string            `json:"category"`
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
}

// TestResponse 测试详情
type TestResponse struct {
	ID          int64             `json:"id"`
	Status      string            `json:"status"`
	UploadID    *string           `json:"upload_id,omitempty"`
	Questions   []QuestionView    `json:"questions"`
	Answers     map[string]string `json:"answers"`
	Score       *int              `json:"score,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TestSummary 测试列表项
type TestSummary struct {
	ID            int64      `json:"id"`
	Status        string     `json:"status"`
	QuestionCount int        `json:"question_count"`
	AnsweredCount int        `json:"answered_count"`
	Score         *int       `json:"score,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TestListResponse 测试列表响应
type TestListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Tests    []TestSummary `json:"tests"`
}

// RecordAnswerRequest 提交答案请求
type RecordAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Choice     string `json:"choice" binding:"required,max=2"`
}

// RecordAnswerResponse 提交答案响应，rationale 失败时为空
type RecordAnswerResponse struct {
	TestID        int64  `json:"test_id"`
	QuestionID    string `json:"question_id"`
	Choice        string `json:"choice"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Rationale     string `json:"rationale"`
}

// CompleteTestRequest 完成测试请求
type CompleteTestRequest struct {
	Score *int `json:"score" binding:"required,min=0,max=100"`
}

// CategoryResult 单个分类在本次测试中的结果
type CategoryResult struct {
	Category string `json:"category"`
	Correct  int    `json:"correct"`
	Total    int    `json:"total"`
}

// FinalizeResponse 完成/放弃测试的响应
type FinalizeResponse struct {
	TestID           int64            `json:"test_id"`
	Score            int              `json:"score"`
	CompletedAt      time.Time        `json:"completed_at"`
	Abandoned        bool             `json:"abandoned"`
	AlreadyCompleted bool             `json:"already_completed"`
	Categories       []CategoryResult `json:"categories,omitempty"`
}

// CompletedErrorData 测试已完成时返回给前端的结构化信息
type CompletedErrorData struct {
	TestID      int64     `json:"test_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}
