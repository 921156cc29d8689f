package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/quiz"
	"github.com/victornm/classquiz/internal/submission"
)

const (
	headerAuthorization = "Authorization"

	// maxAnswerBytes bounds the encoded size of one answer, not its rune count.
	maxAnswerBytes = 4096
)

var registerValidations sync.Once

// registerBindings adds the custom rules used by request binding tags to gin's validator.
// gRPC requests are validated with the same engine. A rule that fails to register would
// make every bind using its tag panic, so it fails at startup instead.
func registerBindings() {
	registerValidations.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			panic(fmt.Sprintf("api: unexpected binding engine %T", binding.Validator.Engine()))
		}
		if err := registerValidation(v); err != nil {
			panic(err)
		}
	})
}

func registerValidation(v *validator.Validate) error {
	if err := v.RegisterValidation("answertext", validAnswerText); err != nil {
		return fmt.Errorf("api: register answertext: %w", err)
	}
	return nil
}

func (a *API) registerHTTP(r gin.IRouter) {
	g := r.Group("/api/quiz/:quiz_id")
	g.GET("", a.handleGetQuiz)
	g.POST("/submit", a.handleSubmitQuiz)
	g.GET("/questions", a.handleListQuestions)
	g.GET("/questions/:question_id", a.handleGetQuestion)
	g.GET("/grade", a.handleGetGrade)
	g.GET("/attempts", a.handleListAttempts)
	g.GET("/leaderboard", a.handleGetLeaderboard)
}

// validAnswerText rejects answers longer than maxAnswerBytes, not valid UTF-8 or carrying
// control characters other than whitespace.
func validAnswerText(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) > maxAnswerBytes || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

type (
	QuizResponse struct {
		ID              int64      `json:"id"`
		Name            string     `json:"quiz_name"`
		ClassID         int64      `json:"class_id"`
		ScheduleStart   *time.Time `json:"schedule_start,omitempty"`
		ScheduleEnd     *time.Time `json:"schedule_end,omitempty"`
		DurationMinutes int        `json:"duration_minutes"`
		CreateTime      time.Time  `json:"created_at"`
		IsActive        bool       `json:"is_active"`
	}

	QuestionResponse struct {
		ID       int64    `json:"id"`
		Position int      `json:"position"`
		Text     string   `json:"question_text"`
		Type     string   `json:"question_type"`
		Choices  []string `json:"choices"`
	}

	GradeResponse struct {
		QuizID     int64     `json:"quiz_id"`
		Score      float64   `json:"score"`
		UpdateTime time.Time `json:"update_time"`
	}

	AttemptResponse struct {
		SubmissionID string                  `json:"submission_id"`
		SubmitTime   time.Time               `json:"submit_time"`
		Responses    []AttemptAnswerResponse `json:"responses"`
	}

	AttemptAnswerResponse struct {
		QuestionID    int64  `json:"question_id"`
		QuestionText  string `json:"question_text"`
		StudentAnswer string `json:"student_answer"`
		CorrectAnswer string `json:"correct_answer"`
		IsCorrect     bool   `json:"is_correct"`
	}
)

func (a *API) handleSubmitQuiz(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	var req SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, invalidRequest(err))
		return
	}
	req.QuizID = quizID

	resp, err := a.submitQuiz(c.Request.Context(), c.GetHeader(headerAuthorization), &req)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetQuiz(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	q, err := a.qs.GetQuiz(c.Request.Context(), quiz.GetQuizRequest{
		Credential: c.GetHeader(headerAuthorization),
		QuizID:     quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizResponse(*q))
}

func (a *API) handleListQuestions(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	qqs, err := a.qs.ListQuestions(c.Request.Context(), quiz.ListQuestionsRequest{
		Credential: c.GetHeader(headerAuthorization),
		QuizID:     quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	resp := make([]QuestionResponse, 0, len(qqs))
	for _, qq := range qqs {
		resp = append(resp, toQuestionResponse(qq))
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetQuestion(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	qqID, err := strconv.ParseInt(c.Param("question_id"), 10, 64)
	if err != nil {
		abort(c, invalidRequest(err))
		return
	}

	qq, err := a.qs.GetQuestion(c.Request.Context(), quiz.GetQuestionRequest{
		Credential:     c.GetHeader(headerAuthorization),
		QuizID:         quizID,
		QuizQuestionID: qqID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestionResponse(*qq))
}

func (a *API) handleGetGrade(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	g, err := a.ss.GetGrade(c.Request.Context(), submission.GetGradeRequest{
		Credential: c.GetHeader(headerAuthorization),
		QuizID:     quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, GradeResponse{
		QuizID:     g.QuizID,
		Score:      g.Score.InexactFloat64(),
		UpdateTime: g.UpdateTime,
	})
}

func (a *API) handleListAttempts(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	attempts, err := a.ss.ListAttempts(c.Request.Context(), submission.ListAttemptsRequest{
		Credential: c.GetHeader(headerAuthorization),
		QuizID:     quizID,
	})
	if err != nil {
		abort(c, err)
		return
	}

	resp := make([]AttemptResponse, 0, len(attempts))
	for _, at := range attempts {
		ar := AttemptResponse{
			SubmissionID: at.SubmissionID.String(),
			SubmitTime:   at.SubmitTime,
			Responses:    make([]AttemptAnswerResponse, 0, len(at.Responses)),
		}
		for _, r := range at.Responses {
			ar.Responses = append(ar.Responses, AttemptAnswerResponse{
				QuestionID:    r.QuizQuestionID,
				QuestionText:  r.QuestionText,
				StudentAnswer: r.StudentAnswer,
				CorrectAnswer: r.CorrectAnswer,
				IsCorrect:     r.IsCorrect,
			})
		}
		resp = append(resp, ar)
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) handleGetLeaderboard(c *gin.Context) {
	quizID, ok := quizIDParam(c)
	if !ok {
		return
	}

	resp, err := a.getLeaderboard(c.Request.Context(), c.GetHeader(headerAuthorization), quizID)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, resp.Leaderboard)
}

func quizIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("quiz_id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonInvalidRequest),
			errors.WithMessagef("invalid quiz id %q", c.Param("quiz_id")),
		))
		return 0, false
	}
	return id, true
}

func invalidRequest(err error) *errors.Error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithReason(errors.ReasonInvalidRequest),
		errors.WithMessagef("invalid request: %v", err),
		errors.WithCause(err),
	)
}

func abort(c *gin.Context, err error) {
	e := publicError(c.Request.Context(), err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func toQuizResponse(q domain.Quiz) QuizResponse {
	resp := QuizResponse{
		ID:              q.ID,
		Name:            q.Name,
		ClassID:         q.ClassID,
		DurationMinutes: q.DurationMinutes,
		CreateTime:      q.CreateTime,
		IsActive:        q.IsActive,
	}
	if !q.ScheduleStart.IsZero() {
		resp.ScheduleStart = &q.ScheduleStart
	}
	if !q.ScheduleEnd.IsZero() {
		resp.ScheduleEnd = &q.ScheduleEnd
	}
	return resp
}

func toQuestionResponse(qq domain.QuizQuestion) QuestionResponse {
	choices := qq.Question.Choices
	if choices == nil {
		choices = []string{}
	}

	return QuestionResponse{
		ID:       qq.ID,
		Position: qq.Position,
		Text:     qq.Question.Text,
		Type:     string(qq.Question.Type),
		Choices:  choices,
	}
}
