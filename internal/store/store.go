// Package store persists quizzes, questions and the records a submission produces.
package store

import (
	"context"
	stderrors "errors"

	"github.com/victornm/classquiz/internal/domain"
)

// ErrNotFound is returned by reads when the requested record does not exist.
var ErrNotFound = stderrors.New("store: not found")

// Reader is the read side the submission flow depends on.
type Reader interface {
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	// GetQuizQuestion returns the QuizQuestion only when it is bound to quizID.
	GetQuizQuestion(ctx context.Context, quizQuestionID, quizID int64) (*domain.QuizQuestion, error)
	GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
	// ListQuizQuestions returns every QuizQuestion bound to quizID ordered by position.
	ListQuizQuestions(ctx context.Context, quizID int64) ([]domain.QuizQuestion, error)
	IsEnrolled(ctx context.Context, classID, userID int64) (bool, error)
	GetGrade(ctx context.Context, quizID, studentID int64) (*domain.Grade, error)
	ListResponses(ctx context.Context, quizID, userID int64) ([]domain.Response, error)
}

// Tx is the write side. Writes become visible only when the surrounding WithinTx returns nil.
type Tx interface {
	CreateResponse(ctx context.Context, r *domain.Response) error
	// UpsertGrade inserts the grade or overwrites the score of the existing (quiz, student) row.
	UpsertGrade(ctx context.Context, g *domain.Grade) error
}

type Store interface {
	Reader
	// WithinTx runs fn in one transaction, committing if fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// AnswerKey loads the answer key of a quiz through the quiz-scoped listing.
func AnswerKey(ctx context.Context, r Reader, quizID int64) (domain.AnswerKey, error) {
	qqs, err := r.ListQuizQuestions(ctx, quizID)
	if err != nil {
		return domain.AnswerKey{}, err
	}

	return domain.NewAnswerKey(quizID, qqs), nil
}
