package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quiz represents a scheduled assessment belonging to a class.
type Quiz struct {
	ID              int64
	Name            string
	ClassID         int64
	ScheduleStart   time.Time
	ScheduleEnd     time.Time
	DurationMinutes int
	CreateTime      time.Time
	IsActive        bool
}

// OpenAt reports whether the quiz accepts submissions at t.
// A zero schedule bound is treated as unbounded on that side.
func (q Quiz) OpenAt(t time.Time) bool {
	if !q.IsActive {
		return false
	}
	if !q.ScheduleStart.IsZero() && t.Before(q.ScheduleStart) {
		return false
	}
	if !q.ScheduleEnd.IsZero() && t.After(q.ScheduleEnd) {
		return false
	}
	return true
}

type QuestionType string

const (
	QuestionTypeIdentification QuestionType = "identification"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeEnumeration    QuestionType = "enumeration"
	QuestionTypeTrueFalse      QuestionType = "true_false"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeIdentification, QuestionTypeMultipleChoice, QuestionTypeEnumeration, QuestionTypeTrueFalse:
		return true
	}
	return false
}

type Question struct {
	QuestionID    int64
	Text          string
	Type          QuestionType
	CorrectAnswer string
	Choices       []string
	CreatedBy     int64
	IsInBank      bool
}

// Validate checks the invariants a stored question must hold.
func (q Question) Validate() error {
	if !q.Type.Valid() {
		return fmt.Errorf("question %d: unknown type %q", q.QuestionID, q.Type)
	}
	if q.Type == QuestionTypeTrueFalse && q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
		return fmt.Errorf("question %d: true_false answer must be \"true\" or \"false\", got %q", q.QuestionID, q.CorrectAnswer)
	}
	return nil
}

// QuizQuestion binds one Question into one Quiz. Submitters reference its ID, not the Question's.
type QuizQuestion struct {
	ID       int64
	QuizID   int64
	Position int
	Question Question
}

// AnswerKey holds every QuizQuestion bound to a single quiz, keyed by QuizQuestion ID.
type AnswerKey struct {
	QuizID int64
	Items  map[int64]QuizQuestion
}

func NewAnswerKey(quizID int64, qqs []QuizQuestion) AnswerKey {
	k := AnswerKey{
		QuizID: quizID,
		Items:  make(map[int64]QuizQuestion, len(qqs)),
	}
	for _, qq := range qqs {
		if qq.QuizID != quizID {
			continue
		}
		k.Items[qq.ID] = qq
	}
	return k
}

// Lookup returns the QuizQuestion only if it is bound to the key's quiz.
func (k AnswerKey) Lookup(quizQuestionID int64) (QuizQuestion, bool) {
	qq, ok := k.Items[quizQuestionID]
	if !ok || qq.QuizID != k.QuizID {
		return QuizQuestion{}, false
	}
	return qq, true
}

// SubmittedAnswer is one (QuizQuestion ID, raw answer text) pair of a submission.
type SubmittedAnswer struct {
	QuizQuestionID int64
	Answer         string
}

// ScoredAnswer is the grading outcome of one SubmittedAnswer.
type ScoredAnswer struct {
	QuizQuestionID int64
	QuestionID     int64
	StudentAnswer  string
	CorrectAnswer  string
	IsCorrect      bool
}

// Response is one recorded answer attempt for one question of one submission.
type Response struct {
	ResponseID     int64
	SubmissionID   uuid.UUID
	UserID         int64
	QuizID         int64
	QuizQuestionID int64
	QuestionID     int64
	StudentAnswer  string
	CorrectAnswer  string
	IsCorrect      bool
	CreateTime     time.Time
}

// Grade is the single authoritative score of a student on a quiz, as a percentage in [0, 100].
type Grade struct {
	QuizID     int64
	StudentID  int64
	Score      decimal.Decimal
	UpdateTime time.Time
}

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Identity is the resolved caller of a request.
type Identity struct {
	UserID   int64
	Username string
	Role     Role
}

// Leaderboard represents the latest grades of a quiz's students.
// The list is sorted by score in descending order.
type Leaderboard struct {
	QuizID  int64
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	Username string
	Score    float64
}
