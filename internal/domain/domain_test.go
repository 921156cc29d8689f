package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/classquiz/internal/domain"
)

func TestQuiz_OpenAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		quiz domain.Quiz
		want bool
	}{
		"active without schedule": {
			quiz: domain.Quiz{IsActive: true},
			want: true,
		},
		"inactive": {
			quiz: domain.Quiz{IsActive: false},
			want: false,
		},
		"inside window": {
			quiz: domain.Quiz{IsActive: true, ScheduleStart: now.Add(-time.Hour), ScheduleEnd: now.Add(time.Hour)},
			want: true,
		},
		"before start": {
			quiz: domain.Quiz{IsActive: true, ScheduleStart: now.Add(time.Minute)},
			want: false,
		},
		"after end": {
			quiz: domain.Quiz{IsActive: true, ScheduleEnd: now.Add(-time.Minute)},
			want: false,
		},
		"exactly at bounds": {
			quiz: domain.Quiz{IsActive: true, ScheduleStart: now, ScheduleEnd: now},
			want: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.quiz.OpenAt(now))
		})
	}
}

func TestQuestion_Validate(t *testing.T) {
	assert.NoError(t, domain.Question{Type: domain.QuestionTypeTrueFalse, CorrectAnswer: "false"}.Validate())
	assert.NoError(t, domain.Question{Type: domain.QuestionTypeEnumeration, CorrectAnswer: "anything"}.Validate())
	assert.Error(t, domain.Question{Type: domain.QuestionTypeTrueFalse, CorrectAnswer: "True"}.Validate())
	assert.Error(t, domain.Question{Type: "essay", CorrectAnswer: "x"}.Validate())
}

func TestAnswerKey_Lookup(t *testing.T) {
	key := domain.NewAnswerKey(1, []domain.QuizQuestion{
		{ID: 10, QuizID: 1},
		{ID: 20, QuizID: 2},
	})

	_, ok := key.Lookup(10)
	assert.True(t, ok)

	_, ok = key.Lookup(20)
	assert.False(t, ok, "a question bound to another quiz is not part of the key")

	_, ok = key.Lookup(30)
	assert.False(t, ok)
}
