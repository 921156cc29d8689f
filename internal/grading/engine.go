package grading

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
)

const defaultPrecision = 2

var hundred = decimal.NewFromInt(100)

type Config struct {
	// Precision is the number of decimal places the aggregate score is rounded to.
	Precision int32
}

// Engine scores submitted answers against a quiz's answer key. It holds no state
// besides its config and never touches the store.
type Engine struct {
	precision int32
}

func NewEngine(c Config) *Engine {
	p := c.Precision
	if p <= 0 {
		p = defaultPrecision
	}

	return &Engine{precision: p}
}

// Result is the outcome of scoring a whole submission.
type Result struct {
	Answers []domain.ScoredAnswer
	// Score is 100 * Correct / Total, rounded to the engine's precision.
	Score   decimal.Decimal
	Total   int
	Correct int
}

// ScoreAnswer decides the correctness of one answer. The referenced QuizQuestion must be bound to quiz.
func (e *Engine) ScoreAnswer(quiz domain.Quiz, key domain.AnswerKey, a domain.SubmittedAnswer) (domain.ScoredAnswer, error) {
	if key.QuizID != quiz.ID {
		return domain.ScoredAnswer{}, questionNotInQuiz(a.QuizQuestionID, quiz.ID)
	}

	qq, ok := key.Lookup(a.QuizQuestionID)
	if !ok {
		return domain.ScoredAnswer{}, questionNotInQuiz(a.QuizQuestionID, quiz.ID)
	}

	correct := qq.Question.CorrectAnswer
	return domain.ScoredAnswer{
		QuizQuestionID: qq.ID,
		QuestionID:     qq.Question.QuestionID,
		StudentAnswer:  a.Answer,
		CorrectAnswer:  correct,
		IsCorrect:      Match(a.Answer, correct),
	}, nil
}

// ScoreSubmission scores answers in input order. The first invalid answer aborts the whole
// submission; no partial result is returned. An empty submission is rejected.
func (e *Engine) ScoreSubmission(quiz domain.Quiz, key domain.AnswerKey, answers []domain.SubmittedAnswer) (*Result, error) {
	if len(answers) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(errors.ReasonEmptySubmission),
			errors.WithMessagef("submission contains no answers"),
		)
	}

	res := &Result{
		Answers: make([]domain.ScoredAnswer, 0, len(answers)),
		Total:   len(answers),
	}

	for _, a := range answers {
		sa, err := e.ScoreAnswer(quiz, key, a)
		if err != nil {
			return nil, err
		}

		if sa.IsCorrect {
			res.Correct++
		}
		res.Answers = append(res.Answers, sa)
	}

	res.Score = e.percentage(res.Correct, res.Total)
	return res, nil
}

func (e *Engine) percentage(correct, total int) decimal.Decimal {
	return decimal.NewFromInt(int64(correct)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), e.precision)
}

func questionNotInQuiz(quizQuestionID, quizID int64) *errors.Error {
	return errors.New(errors.CodeNotFound,
		errors.WithReason(errors.ReasonQuestionNotInQuiz),
		errors.WithMessagef("question %d not part of the quiz %d", quizQuestionID, quizID),
	)
}
