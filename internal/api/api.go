package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/event"
	"github.com/victornm/classquiz/internal/leaderboard"
	"github.com/victornm/classquiz/internal/quiz"
	"github.com/victornm/classquiz/internal/submission"
)

type Config struct {
	GRPC         *grpc.Server
	HTTP         gin.IRouter
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Submission   *submission.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qs *quiz.Service
	ss *submission.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		ss:     c.Submission,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	registerBindings()

	if c.GRPC != nil {
		RegisterQuizServiceServer(c.GRPC, a)
	}

	if c.HTTP != nil {
		a.registerHTTP(c.HTTP)
	}

	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

type (
	Answer struct {
		QuestionID int64  `json:"question_id" binding:"required,gt=0"`
		Answer     string `json:"answer" binding:"answertext"`
	}

	SubmitQuizRequest struct {
		QuizID  int64    `json:"quiz_id"`
		Answers []Answer `json:"answers" binding:"dive"`
	}

	SubmitQuizResponse struct {
		Message        string  `json:"message"`
		SubmissionID   string  `json:"submission_id"`
		Score          float64 `json:"score"`
		TotalQuestions int     `json:"total_questions"`
		CorrectAnswers int     `json:"correct_answers"`
	}

	GetLeaderboardRequest struct {
		QuizID int64 `json:"quiz_id"`
	}

	GetLeaderboardResponse struct {
		Leaderboard Leaderboard `json:"leaderboard"`
	}
)

func (a *API) submitQuiz(ctx context.Context, credential string, req *SubmitQuizRequest) (*SubmitQuizResponse, error) {
	answers := make([]domain.SubmittedAnswer, 0, len(req.Answers))
	for _, ans := range req.Answers {
		answers = append(answers, domain.SubmittedAnswer{
			QuizQuestionID: ans.QuestionID,
			Answer:         ans.Answer,
		})
	}

	resp, err := a.ss.SubmitQuiz(ctx, submission.SubmitQuizRequest{
		Credential: credential,
		QuizID:     req.QuizID,
		Answers:    answers,
	})
	if err != nil {
		return nil, err
	}

	return &SubmitQuizResponse{
		Message:        resp.Message,
		SubmissionID:   resp.SubmissionID.String(),
		Score:          resp.Score.InexactFloat64(),
		TotalQuestions: resp.TotalQuestions,
		CorrectAnswers: resp.CorrectAnswers,
	}, nil
}

func (a *API) getLeaderboard(ctx context.Context, credential string, quizID int64) (*GetLeaderboardResponse, error) {
	if _, err := a.qs.Authorize(ctx, credential, quizID); err != nil {
		return nil, err
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResponse{Leaderboard: toLeaderboard(*l)}, nil
}

// publicError converts err for a caller. Internal errors are logged with their cause and
// returned with a generic message only.
func publicError(ctx context.Context, err error) *errors.Error {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "api: internal error", "error", err)
		return errors.New(errors.CodeInternal, errors.WithMessagef("an error occurred, please try again later"))
	}
	return e
}
