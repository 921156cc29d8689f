package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/victornm/classquiz/internal/domain"
)

type gradeKey struct {
	quizID    int64
	studentID int64
}

// Memory is an in-process Store. Transactions hold the write lock for their whole
// duration and stage writes, so concurrent submissions serialize and failed ones leave no trace.
type Memory struct {
	mu sync.RWMutex

	quizzes       map[int64]domain.Quiz
	questions     map[int64]domain.Question
	quizQuestions map[int64]quizQuestionRow
	members       map[int64]map[int64]struct{}
	responses     []domain.Response
	grades        map[gradeKey]domain.Grade

	nextResponseID int64
	now            func() time.Time
}

type quizQuestionRow struct {
	id         int64
	quizID     int64
	questionID int64
	position   int
}

func NewMemory() *Memory {
	return &Memory{
		quizzes:       make(map[int64]domain.Quiz),
		questions:     make(map[int64]domain.Question),
		quizQuestions: make(map[int64]quizQuestionRow),
		members:       make(map[int64]map[int64]struct{}),
		grades:        make(map[gradeKey]domain.Grade),
		now:           time.Now,
	}
}

// PutQuiz stores or replaces a quiz.
func (m *Memory) PutQuiz(q domain.Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
}

func (m *Memory) PutQuestion(q domain.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.QuestionID] = q
}

// BindQuestion links a stored question into a quiz under the given QuizQuestion ID.
func (m *Memory) BindQuestion(quizQuestionID, quizID, questionID int64, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quizzes[quizID]; !ok {
		return fmt.Errorf("bind question: quiz %d: %w", quizID, ErrNotFound)
	}
	if _, ok := m.questions[questionID]; !ok {
		return fmt.Errorf("bind question: question %d: %w", questionID, ErrNotFound)
	}

	m.quizQuestions[quizQuestionID] = quizQuestionRow{
		id:         quizQuestionID,
		quizID:     quizID,
		questionID: questionID,
		position:   position,
	}
	return nil
}

func (m *Memory) Enroll(classID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[classID] == nil {
		m.members[classID] = make(map[int64]struct{})
	}
	m.members[classID][userID] = struct{}{}
}

func (m *Memory) GetQuiz(_ context.Context, quizID int64) (*domain.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quizzes[quizID]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *Memory) GetQuizQuestion(_ context.Context, quizQuestionID, quizID int64) (*domain.QuizQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.quizQuestions[quizQuestionID]
	if !ok || row.quizID != quizID {
		return nil, ErrNotFound
	}

	qq := m.resolve(row)
	return &qq, nil
}

func (m *Memory) GetQuestion(_ context.Context, questionID int64) (*domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[questionID]
	if !ok {
		return nil, ErrNotFound
	}
	q.Choices = slices.Clone(q.Choices)
	return &q, nil
}

func (m *Memory) ListQuizQuestions(_ context.Context, quizID int64) ([]domain.QuizQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.QuizQuestion
	for _, row := range m.quizQuestions {
		if row.quizID == quizID {
			out = append(out, m.resolve(row))
		}
	}

	slices.SortFunc(out, func(a, b domain.QuizQuestion) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *Memory) resolve(row quizQuestionRow) domain.QuizQuestion {
	q := m.questions[row.questionID]
	q.Choices = slices.Clone(q.Choices)

	return domain.QuizQuestion{
		ID:       row.id,
		QuizID:   row.quizID,
		Position: row.position,
		Question: q,
	}
}

func (m *Memory) IsEnrolled(_ context.Context, classID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[classID][userID]
	return ok, nil
}

func (m *Memory) GetGrade(_ context.Context, quizID, studentID int64) (*domain.Grade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grades[gradeKey{quizID, studentID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

// ListResponses returns the responses of a user on a quiz in creation order.
func (m *Memory) ListResponses(_ context.Context, quizID, userID int64) ([]domain.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Response
	for _, r := range m.responses {
		if r.QuizID == quizID && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CountGrades returns how many grade rows exist for a (quiz, student) pair. It is at most 1.
func (m *Memory) CountGrades(quizID, studentID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k := range m.grades {
		if k.quizID == quizID && k.studentID == studentID {
			n++
		}
	}
	return n
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{m: m, grades: make(map[gradeKey]domain.Grade)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for i := range tx.responses {
		m.nextResponseID++
		tx.responses[i].ResponseID = m.nextResponseID
		tx.staged[i].ResponseID = m.nextResponseID
	}
	m.responses = append(m.responses, tx.responses...)
	for k, g := range tx.grades {
		m.grades[k] = g
	}
	return nil
}

type memoryTx struct {
	m         *Memory
	responses []domain.Response
	staged    []*domain.Response
	grades    map[gradeKey]domain.Grade
}

func (tx *memoryTx) CreateResponse(_ context.Context, r *domain.Response) error {
	if _, ok := tx.m.quizzes[r.QuizID]; !ok {
		return fmt.Errorf("create response: quiz %d: %w", r.QuizID, ErrNotFound)
	}
	if r.CreateTime.IsZero() {
		r.CreateTime = tx.m.now()
	}

	tx.responses = append(tx.responses, *r)
	tx.staged = append(tx.staged, r)
	return nil
}

func (tx *memoryTx) UpsertGrade(_ context.Context, g *domain.Grade) error {
	if _, ok := tx.m.quizzes[g.QuizID]; !ok {
		return fmt.Errorf("upsert grade: quiz %d: %w", g.QuizID, ErrNotFound)
	}
	if g.UpdateTime.IsZero() {
		g.UpdateTime = tx.m.now()
	}

	tx.grades[gradeKey{g.QuizID, g.StudentID}] = *g
	return nil
}
