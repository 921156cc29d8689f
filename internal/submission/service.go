// Package submission coordinates a quiz submission end to end: access checks, grading and
// the atomic write of responses and the grade.
package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/event"
	"github.com/victornm/classquiz/internal/grading"
	"github.com/victornm/classquiz/internal/quiz"
	"github.com/victornm/classquiz/internal/store"
	"github.com/victornm/classquiz/internal/telemetry"
)

const messageSubmitted = "Quiz submitted successfully!"

type Config struct {
	Store    store.Store
	Quiz     *quiz.Service
	Engine   *grading.Engine
	EventBus *event.Bus
	Metrics  *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store   store.Store
	quiz    *quiz.Service
	engine  *grading.Engine
	eb      *event.Bus
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		quiz:    c.Quiz,
		engine:  c.Engine,
		eb:      c.EventBus,
		metrics: c.Metrics,
		now:     c.Now,
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.engine == nil {
		s.engine = grading.NewEngine(grading.Config{})
	}

	return s
}

// SubmitQuizRequest represents one submission of answers to a quiz.
type SubmitQuizRequest struct {
	// Credential is the caller's bearer credential.
	Credential string
	QuizID     int64
	// Answers reference QuizQuestion IDs, in the order they were submitted.
	Answers []domain.SubmittedAnswer
}

type SubmitQuizResponse struct {
	Message        string
	SubmissionID   uuid.UUID
	Score          decimal.Decimal
	TotalQuestions int
	CorrectAnswers int
}

// SubmitQuiz grades the answers and records them with the caller's grade in one transaction.
// Any rejection happens before the first write, so a failed submission leaves the store untouched.
func (s *Service) SubmitQuiz(ctx context.Context, req SubmitQuizRequest) (resp *SubmitQuizResponse, err error) {
	defer func() { s.observe(ctx, req, resp, err) }()

	acc, err := s.quiz.Authorize(ctx, req.Credential, req.QuizID)
	if err != nil {
		return nil, err
	}

	q, student := acc.Quiz, acc.Identity
	now := s.now()
	if !q.OpenAt(now) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithReason(errors.ReasonQuizClosed),
			errors.WithMessagef("this quiz is not available for submission"),
		)
	}

	key, err := store.AnswerKey(ctx, s.store, q.ID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	res, err := s.engine.ScoreSubmission(q, key, req.Answers)
	if err != nil {
		return nil, err
	}

	subID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	grade := domain.Grade{
		QuizID:     q.ID,
		StudentID:  student.UserID,
		Score:      res.Score,
		UpdateTime: now,
	}

	if err := s.persist(ctx, subID, student, grade, res.Answers); err != nil {
		return nil, err
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventGradeUpdated{
			SubmissionID: subID,
			Student:      student,
			Grade:        grade,
		})
	}

	return &SubmitQuizResponse{
		Message:        messageSubmitted,
		SubmissionID:   subID,
		Score:          res.Score,
		TotalQuestions: res.Total,
		CorrectAnswers: res.Correct,
	}, nil
}

func (s *Service) persist(ctx context.Context, subID uuid.UUID, student domain.Identity, g domain.Grade, answers []domain.ScoredAnswer) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, a := range answers {
			r := &domain.Response{
				SubmissionID:   subID,
				UserID:         student.UserID,
				QuizID:         g.QuizID,
				QuizQuestionID: a.QuizQuestionID,
				QuestionID:     a.QuestionID,
				StudentAnswer:  a.StudentAnswer,
				CorrectAnswer:  a.CorrectAnswer,
				IsCorrect:      a.IsCorrect,
				CreateTime:     g.UpdateTime,
			}
			if err := tx.CreateResponse(ctx, r); err != nil {
				return err
			}
		}

		return tx.UpsertGrade(ctx, &g)
	})
	if err != nil {
		return fmt.Errorf("persist submission %s: %w", subID, err)
	}

	return nil
}

func (s *Service) observe(ctx context.Context, req SubmitQuizRequest, resp *SubmitQuizResponse, err error) {
	outcome := "ok"
	switch e := errors.Convert(err); {
	case err == nil:
		slog.InfoContext(ctx, "submission: graded",
			"quiz_id", req.QuizID,
			"submission_id", resp.SubmissionID,
			"score", resp.Score.String(),
			"correct", resp.CorrectAnswers,
			"total", resp.TotalQuestions,
		)
	case e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable:
		outcome = "internal"
		if e.Reason != "" {
			outcome = string(e.Reason)
		}
		slog.ErrorContext(ctx, "submission: failed",
			"quiz_id", req.QuizID,
			"error", err,
		)
	default:
		outcome = string(e.Reason)
		if outcome == "" {
			outcome = "rejected"
		}
		slog.InfoContext(ctx, "submission: rejected",
			"quiz_id", req.QuizID,
			"reason", e.Reason,
			"message", e.Message,
		)
	}

	if s.metrics == nil {
		return
	}
	s.metrics.Submissions.WithLabelValues(outcome).Inc()
	if err == nil {
		s.metrics.Scores.Observe(resp.Score.InexactFloat64())
	}
}

type GetGradeRequest struct {
	Credential string
	QuizID     int64
}

// GetGrade returns the caller's current grade on a quiz.
func (s *Service) GetGrade(ctx context.Context, req GetGradeRequest) (*domain.Grade, error) {
	acc, err := s.quiz.Authorize(ctx, req.Credential, req.QuizID)
	if err != nil {
		return nil, err
	}

	g, err := s.store.GetGrade(ctx, acc.Quiz.ID, acc.Identity.UserID)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithReason(errors.ReasonGradeNotFound),
			errors.WithMessagef("no grade recorded for quiz %d", req.QuizID),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("get grade: %w", err)
	}

	return g, nil
}

type ListAttemptsRequest struct {
	Credential string
	QuizID     int64
}

// Attempt groups the responses recorded by one submission.
type Attempt struct {
	SubmissionID uuid.UUID
	SubmitTime   time.Time
	Responses    []AttemptResponse
}

type AttemptResponse struct {
	domain.Response
	QuestionText string
}

// ListAttempts returns the caller's past submissions to a quiz, oldest first.
func (s *Service) ListAttempts(ctx context.Context, req ListAttemptsRequest) ([]Attempt, error) {
	acc, err := s.quiz.Authorize(ctx, req.Credential, req.QuizID)
	if err != nil {
		return nil, err
	}

	resps, err := s.store.ListResponses(ctx, acc.Quiz.ID, acc.Identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	texts := make(map[int64]string)
	var (
		attempts []Attempt
		index    = make(map[uuid.UUID]int)
	)
	for _, r := range resps {
		text, ok := texts[r.QuestionID]
		if !ok {
			q, err := s.store.GetQuestion(ctx, r.QuestionID)
			if err != nil && !stderrors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("get question %d: %w", r.QuestionID, err)
			}
			if q != nil {
				text = q.Text
			}
			texts[r.QuestionID] = text
		}

		i, ok := index[r.SubmissionID]
		if !ok {
			i = len(attempts)
			index[r.SubmissionID] = i
			attempts = append(attempts, Attempt{SubmissionID: r.SubmissionID, SubmitTime: r.CreateTime})
		}
		attempts[i].Responses = append(attempts[i].Responses, AttemptResponse{Response: r, QuestionText: text})
	}

	return attempts, nil
}
