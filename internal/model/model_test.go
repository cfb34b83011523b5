package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestDistributeCategories(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want map[string]int
	}{
		{
			name: "hundred questions",
			n:    100,
			want: map[string]int{
				CategorySafeCare:        25,
				CategoryHealthPromotion: 15,
				CategoryPsychosocial:    10,
				CategoryPhysiological:   50,
			},
		},
		{
			name: "remainder goes to physiological",
			n:    10,
			want: map[string]int{
				CategorySafeCare:        2,
				CategoryHealthPromotion: 1,
				CategoryPsychosocial:    1,
				CategoryPhysiological:   6,
			},
		},
		{
			name: "zero",
			n:    0,
			want: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistributeCategories(tt.n)
			assert.Equal(t, tt.want, got)

			sum := 0
			for _, v := range got {
				sum += v
			}
			assert.Equal(t, max(tt.n, 0), sum)
		})
	}
}

func TestTest_Status(t *testing.T) {
	now := time.Now()

	created := &Test{}
	assert.Equal(t, TestStatusCreated, created.Status())

	inProgress := &Test{Answers: datatypes.NewJSONType(AnswerMap{"q1": "A"})}
	assert.Equal(t, TestStatusInProgress, inProgress.Status())

	completed := &Test{CompletedAt: &now}
	assert.Equal(t, TestStatusCompleted, completed.Status())

	abandoned := &Test{CompletedAt: &now, Abandoned: true}
	assert.Equal(t, TestStatusAbandoned, abandoned.Status())
}

func TestTest_FindQuestion(t *testing.T) {
	test := &Test{Questions: datatypes.NewJSONSlice([]Question{
		{ID: "q1", Category: CategoryPsychosocial, CorrectAnswer: "B"},
	})}

	q, ok := test.FindQuestion("q1")
	assert.True(t, ok)
	assert.Equal(t, "B", q.CorrectAnswer)

	_, ok = test.FindQuestion("missing")
	assert.False(t, ok)
}

func TestUser_IsSubscribed(t *testing.T) {
	assert.True(t, (&User{SubscriptionStatus: SubscriptionActive}).IsSubscribed())
	assert.False(t, (&User{SubscriptionStatus: SubscriptionPastDue}).IsSubscribed())
	assert.False(t, (&User{SubscriptionStatus: SubscriptionInactive}).IsSubscribed())
}
