package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/qs3c/exam_prep_server/internal/model"
)

var mockLetters = []string{"A", "B", "C", "D"}

// MockGenerator 确定性生成器：同样的输入总是得到同样的题目
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) GenerateQuestions(ctx context.Context, sourceText string, count int) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, ErrNoValidQuestions
	}

	topics := splitTopics(sourceText)
	dist := model.DistributeCategories(count)

	questions := make([]model.Question, 0, count)
	for _, c := range model.CategoryDistribution {
		for i := 0; i < dist[c.Category]; i++ {
			n := len(questions)
			topic := "general nursing practice"
			if len(topics) > 0 {
				topic = topics[n%len(topics)]
			}
			questions = append(questions, model.Question{
				ID:       fmt.Sprintf("q%d", n+1),
				Category: c.Category,
				Question: fmt.Sprintf("Which statement about %s is most accurate?", topic),
				Options: map[string]string{
					"A": "Statement A",
					"B": "Statement B",
					"C": "Statement C",
					"D": "Statement D",
				},
				CorrectAnswer: mockLetters[n%len(mockLetters)],
				Explanation:   fmt.Sprintf("Review the material on %s.", topic),
			})
		}
	}
	return questions, nil
}

func (m *MockGenerator) ExplainAnswer(ctx context.Context, q model.Question, chosen string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if chosen == q.CorrectAnswer {
		return fmt.Sprintf("Correct. %s is the best answer.", q.CorrectAnswer), nil
	}
	return fmt.Sprintf("%s is incorrect. The correct answer is %s.", chosen, q.CorrectAnswer), nil
}

func splitTopics(text string) []string {
	var topics []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' }) {
		s = strings.TrimSpace(s)
		if len(s) > 80 {
			s = s[:80]
		}
		if s != "" {
			topics = append(topics, s)
		}
	}
	return topics
}
