// Package generator 对接题目生成服务
package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/qs3c/exam_prep_server/internal/model"
)

var ErrNoValidQuestions = errors.New("generator returned no valid questions")

type Generator interface {
	// GenerateQuestions sourceText 为空时生成通用练习题
	GenerateQuestions(ctx context.Context, sourceText string, count int) ([]model.Question, error)
	// ExplainAnswer 解释所选答案与正确答案的差异
	ExplainAnswer(ctx context.Context, q model.Question, chosen string) (string, error)
}

// Sanitize 过滤不合法的题目并补全 ID，最多保留 count 道
func Sanitize(questions []model.Question, count int) ([]model.Question, error) {
	out := make([]model.Question, 0, len(questions))
	seen := make(map[string]bool, len(questions))
	next := 0

	for _, q := range questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 {
			continue
		}

		normalized := make(map[string]string, len(q.Options))
		for k, v := range q.Options {
			normalized[strings.ToUpper(strings.TrimSpace(k))] = v
		}
		q.Options = normalized

		q.CorrectAnswer = strings.ToUpper(strings.TrimSpace(q.CorrectAnswer))
		if _, ok := q.Options[q.CorrectAnswer]; !ok {
			continue
		}
		if !model.IsValidCategory(q.Category) {
			q.Category = model.CategoryPhysiological
		}

		// 缺失或重复的 ID 换成未被占用的 qN
		for q.ID == "" || seen[q.ID] {
			next++
			q.ID = fmt.Sprintf("q%d", next)
		}
		seen[q.ID] = true

		out = append(out, q)
		if count > 0 && len(out) == count {
			break
		}
	}

	if len(out) == 0 {
		return nil, ErrNoValidQuestions
	}
	return out, nil
}

// OptionLetters 返回排序后的选项字母
func OptionLetters(q model.Question) []string {
	letters := make([]string, 0, len(q.Options))
	for k := range q.Options {
		letters = append(letters, k)
	}
	sort.Strings(letters)
	return letters
}
