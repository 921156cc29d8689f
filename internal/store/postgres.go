package store

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
)

//go:embed schema.sql
var schema string

// Postgres is the Store backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables the service needs if they do not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	const stmt = `
SELECT quiz_id, quiz_name, class_id, schedule_start, schedule_end, duration_minutes, create_time, is_active
FROM quizzes
WHERE quiz_id = $1;`

	var (
		q          domain.Quiz
		start, end *time.Time
	)
	err := p.db.QueryRow(ctx, stmt, quizID).Scan(
		&q.ID, &q.Name, &q.ClassID, &start, &end, &q.DurationMinutes, &q.CreateTime, &q.IsActive,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("get quiz %d: %w", quizID, err))
	}

	if start != nil {
		q.ScheduleStart = *start
	}
	if end != nil {
		q.ScheduleEnd = *end
	}
	return &q, nil
}

const selectQuizQuestion = `
SELECT qq.quiz_question_id, qq.quiz_id, qq.position,
	q.question_id, q.question_text, q.question_type, q.correct_answer, q.choices, q.created_by, q.is_in_bank
FROM quiz_questions qq
JOIN questions q ON q.question_id = qq.question_id`

func (p *Postgres) GetQuizQuestion(ctx context.Context, quizQuestionID, quizID int64) (*domain.QuizQuestion, error) {
	stmt := selectQuizQuestion + ` WHERE qq.quiz_question_id = $1 AND qq.quiz_id = $2;`

	rows, err := p.db.Query(ctx, stmt, quizQuestionID, quizID)
	if err != nil {
		return nil, classify(fmt.Errorf("get quiz question %d: %w", quizQuestionID, err))
	}

	qq, err := pgx.CollectExactlyOneRow(rows, scanQuizQuestion)
	if err != nil {
		return nil, classify(fmt.Errorf("get quiz question %d: %w", quizQuestionID, err))
	}
	return &qq, nil
}

func (p *Postgres) ListQuizQuestions(ctx context.Context, quizID int64) ([]domain.QuizQuestion, error) {
	stmt := selectQuizQuestion + ` WHERE qq.quiz_id = $1 ORDER BY qq.position, qq.quiz_question_id;`

	rows, err := p.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, classify(fmt.Errorf("list quiz questions %d: %w", quizID, err))
	}

	qqs, err := pgx.CollectRows(rows, scanQuizQuestion)
	if err != nil {
		return nil, classify(fmt.Errorf("list quiz questions %d: %w", quizID, err))
	}
	return qqs, nil
}

func scanQuizQuestion(r pgx.CollectableRow) (domain.QuizQuestion, error) {
	var (
		qq    domain.QuizQuestion
		qtype string
	)
	err := r.Scan(
		&qq.ID, &qq.QuizID, &qq.Position,
		&qq.Question.QuestionID, &qq.Question.Text, &qtype, &qq.Question.CorrectAnswer,
		&qq.Question.Choices, &qq.Question.CreatedBy, &qq.Question.IsInBank,
	)
	qq.Question.Type = domain.QuestionType(qtype)
	return qq, err
}

func (p *Postgres) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	const stmt = `
SELECT question_id, question_text, question_type, correct_answer, choices, created_by, is_in_bank
FROM questions
WHERE question_id = $1;`

	var (
		q     domain.Question
		qtype string
	)
	err := p.db.QueryRow(ctx, stmt, questionID).Scan(
		&q.QuestionID, &q.Text, &qtype, &q.CorrectAnswer, &q.Choices, &q.CreatedBy, &q.IsInBank,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("get question %d: %w", questionID, err))
	}

	q.Type = domain.QuestionType(qtype)
	return &q, nil
}

func (p *Postgres) IsEnrolled(ctx context.Context, classID, userID int64) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM class_memberships WHERE class_id = $1 AND student_id = $2);`

	var ok bool
	if err := p.db.QueryRow(ctx, stmt, classID, userID).Scan(&ok); err != nil {
		return false, classify(fmt.Errorf("check enrollment: %w", err))
	}
	return ok, nil
}

func (p *Postgres) GetGrade(ctx context.Context, quizID, studentID int64) (*domain.Grade, error) {
	const stmt = `SELECT quiz_id, student_id, grade, update_time FROM grades WHERE quiz_id = $1 AND student_id = $2;`

	var g domain.Grade
	err := p.db.QueryRow(ctx, stmt, quizID, studentID).Scan(&g.QuizID, &g.StudentID, &g.Score, &g.UpdateTime)
	if err != nil {
		return nil, classify(fmt.Errorf("get grade: %w", err))
	}
	return &g, nil
}

func (p *Postgres) ListResponses(ctx context.Context, quizID, userID int64) ([]domain.Response, error) {
	const stmt = `
SELECT response_id, submission_id, user_id, quiz_id, quiz_question_id, question_id,
	student_answer, correct_answer, is_correct, create_time
FROM responses
WHERE quiz_id = $1 AND user_id = $2
ORDER BY response_id;`

	rows, err := p.db.Query(ctx, stmt, quizID, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("list responses: %w", err))
	}

	resps, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Response, error) {
		var rs domain.Response
		err := r.Scan(
			&rs.ResponseID, &rs.SubmissionID, &rs.UserID, &rs.QuizID, &rs.QuizQuestionID, &rs.QuestionID,
			&rs.StudentAnswer, &rs.CorrectAnswer, &rs.IsCorrect, &rs.CreateTime,
		)
		return rs, err
	})
	if err != nil {
		return nil, classify(fmt.Errorf("list responses: %w", err))
	}
	return resps, nil
}

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
			err = stderrors.Join(err, rbErr)
		}
	}()

	if err = fn(ctx, postgresTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t postgresTx) CreateResponse(ctx context.Context, r *domain.Response) error {
	const stmt = `
INSERT INTO responses (submission_id, user_id, quiz_id, quiz_question_id, question_id,
	student_answer, correct_answer, is_correct, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
RETURNING response_id, create_time;`

	var createTime *time.Time
	if !r.CreateTime.IsZero() {
		createTime = &r.CreateTime
	}

	err := t.tx.QueryRow(ctx, stmt,
		r.SubmissionID, r.UserID, r.QuizID, r.QuizQuestionID, r.QuestionID,
		r.StudentAnswer, r.CorrectAnswer, r.IsCorrect, createTime,
	).Scan(&r.ResponseID, &r.CreateTime)
	if err != nil {
		return classify(fmt.Errorf("insert response: %w", err))
	}
	return nil
}

// UpsertGrade relies on the (quiz_id, student_id) primary key: concurrent upserts for the
// same pair serialize on the row lock and the last commit wins.
func (t postgresTx) UpsertGrade(ctx context.Context, g *domain.Grade) error {
	const stmt = `
INSERT INTO grades (quiz_id, student_id, grade, update_time)
VALUES ($1, $2, $3, COALESCE($4, now()))
ON CONFLICT (quiz_id, student_id) DO UPDATE
SET grade = EXCLUDED.grade, update_time = EXCLUDED.update_time
RETURNING update_time;`

	var updateTime *time.Time
	if !g.UpdateTime.IsZero() {
		updateTime = &g.UpdateTime
	}

	if err := t.tx.QueryRow(ctx, stmt, g.QuizID, g.StudentID, g.Score, updateTime).Scan(&g.UpdateTime); err != nil {
		return classify(fmt.Errorf("upsert grade: %w", err))
	}
	return nil
}

// classify maps driver errors onto the store's error vocabulary: missing rows become
// ErrNotFound and transient failures become Unavailable so callers can tell the client to retry.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if transient(err) {
		return errors.Unavailable(err)
	}

	return err
}

func transient(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		const (
			codeSerializationFailure = "40001"
			codeDeadlockDetected     = "40P01"
			codeCannotConnectNow     = "57P03"
		)

		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == codeSerializationFailure ||
			pgErr.Code == codeDeadlockDetected ||
			pgErr.Code == codeCannotConnectNow
	}

	var connErr *pgconn.ConnectError
	if stderrors.As(err, &connErr) {
		return true
	}

	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
