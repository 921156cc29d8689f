package quiz

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/store"
)

// IdentityResolver turns a request credential into the calling user.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*domain.Identity, error)
}

type Config struct {
	Store store.Reader
	Auth  IdentityResolver
}

type Service struct {
	store store.Reader
	auth  IdentityResolver
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
		auth:  c.Auth,
	}
}

// Access is a caller cleared to work with a quiz.
type Access struct {
	Identity domain.Identity
	Quiz     domain.Quiz
}

// Authorize resolves the caller, loads the quiz and checks the caller is enrolled in the quiz's class.
func (s *Service) Authorize(ctx context.Context, credential string, quizID int64) (*Access, error) {
	id, err := s.auth.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	q, err := s.store.GetQuiz(ctx, quizID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuizNotFound),
			errors.WithMessagef("quiz %d not found", quizID),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	ok, err := s.store.IsEnrolled(ctx, q.ClassID, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "quiz: caller not enrolled",
			"quiz_id", quizID,
			"class_id", q.ClassID,
			"user_id", id.UserID,
		)
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithReason(errors.ReasonNotEnrolled),
			errors.WithMessagef("user is not enrolled in the class of quiz %d", quizID),
		)
	}

	return &Access{Identity: *id, Quiz: *q}, nil
}

type GetQuizRequest struct {
	Credential string
	QuizID     int64
}

// GetQuiz returns the details of a quiz to an enrolled caller.
func (s *Service) GetQuiz(ctx context.Context, req GetQuizRequest) (*domain.Quiz, error) {
	acc, err := s.Authorize(ctx, req.Credential, req.QuizID)
	if err != nil {
		return nil, err
	}

	return &acc.Quiz, nil
}

type ListQuestionsRequest struct {
	Credential string
	QuizID     int64
}

// ListQuestions returns the questions of a quiz in position order as a student sees them:
// correct answers are blanked.
func (s *Service) ListQuestions(ctx context.Context, req ListQuestionsRequest) ([]domain.QuizQuestion, error) {
	if _, err := s.Authorize(ctx, req.Credential, req.QuizID); err != nil {
		return nil, err
	}

	qqs, err := s.store.ListQuizQuestions(ctx, req.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list quiz questions: %w", err)
	}

	for i := range qqs {
		qqs[i].Question.CorrectAnswer = ""
	}
	return qqs, nil
}

type GetQuestionRequest struct {
	Credential     string
	QuizID         int64
	QuizQuestionID int64
}

// GetQuestion returns one question of a quiz, looked up by its QuizQuestion ID within that quiz only.
func (s *Service) GetQuestion(ctx context.Context, req GetQuestionRequest) (*domain.QuizQuestion, error) {
	if _, err := s.Authorize(ctx, req.Credential, req.QuizID); err != nil {
		return nil, err
	}

	qq, err := s.store.GetQuizQuestion(ctx, req.QuizQuestionID, req.QuizID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonQuestionNotInQuiz),
			errors.WithMessagef("question %d not part of the quiz %d", req.QuizQuestionID, req.QuizID),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz question: %w", err)
	}

	qq.Question.CorrectAnswer = ""
	return qq, nil
}
