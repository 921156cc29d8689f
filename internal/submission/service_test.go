package submission_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/classquiz/internal/auth"
	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/event"
	"github.com/victornm/classquiz/internal/grading"
	"github.com/victornm/classquiz/internal/quiz"
	"github.com/victornm/classquiz/internal/store"
	"github.com/victornm/classquiz/internal/submission"
)

const (
	quizID    = int64(1)
	classID   = int64(7)
	studentID = int64(5)
)

var now = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestService_SubmitQuiz(t *testing.T) {
	type (
		inputs struct {
			credential string
			quizID     int64
			answers    []domain.SubmittedAnswer
		}

		outputs struct {
			resp  *submission.SubmitQuizResponse
			err   error
			store *store.Memory
		}
	)

	tests := map[string]struct {
		arrange func(f *fixture) inputs
		assert  func(t *testing.T, out outputs)
	}{
		"all correct answers are recorded with a grade of 100": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers: []domain.SubmittedAnswer{
						{QuizQuestionID: 10, Answer: "True"},
						{QuizQuestionID: 11, Answer: "blue"},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "Quiz submitted successfully!", out.resp.Message)
				assertScore(t, "100", out.resp.Score)
				assert.Equal(t, 2, out.resp.TotalQuestions)
				assert.Equal(t, 2, out.resp.CorrectAnswers)

				resps := listResponses(t, out.store)
				require.Len(t, resps, 2)
				for _, r := range resps {
					assert.True(t, r.IsCorrect)
					assert.Equal(t, out.resp.SubmissionID, r.SubmissionID)
				}
				assert.Equal(t, "True", resps[0].StudentAnswer)
				assert.Equal(t, "true", resps[0].CorrectAnswer)
				assert.Equal(t, int64(101), resps[0].QuestionID)

				assertGrade(t, out.store, "100")
			},
		},

		"one wrong answer out of two grades 50": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers: []domain.SubmittedAnswer{
						{QuizQuestionID: 10, Answer: "false"},
						{QuizQuestionID: 11, Answer: "Blue"},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assertScore(t, "50", out.resp.Score)
				assert.Equal(t, 1, out.resp.CorrectAnswers)

				resps := listResponses(t, out.store)
				require.Len(t, resps, 2)
				assert.False(t, resps[0].IsCorrect)
				assert.True(t, resps[1].IsCorrect)

				assertGrade(t, out.store, "50")
			},
		},

		"a question of another quiz aborts without writing": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers: []domain.SubmittedAnswer{
						{QuizQuestionID: 10, Answer: "true"},
						{QuizQuestionID: 20, Answer: "blue"},
					},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeNotFound, errors.ReasonQuestionNotInQuiz)
				assert.Contains(t, errors.Convert(out.err).Message, "20")
				assertNothingWritten(t, out.store)
			},
		},

		"inactive quiz is closed": {
			arrange: func(f *fixture) inputs {
				q := f.quiz
				q.IsActive = false
				f.store.PutQuiz(q)

				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeFailedPrecondition, errors.ReasonQuizClosed)
				assertNothingWritten(t, out.store)
			},
		},

		"quiz past its schedule is closed": {
			arrange: func(f *fixture) inputs {
				q := f.quiz
				q.ScheduleEnd = now.Add(-time.Minute)
				f.store.PutQuiz(q)

				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeFailedPrecondition, errors.ReasonQuizClosed)
				assertNothingWritten(t, out.store)
			},
		},

		"quiz before its schedule is closed": {
			arrange: func(f *fixture) inputs {
				q := f.quiz
				q.ScheduleStart = now.Add(time.Hour)
				f.store.PutQuiz(q)

				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
					answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeFailedPrecondition, errors.ReasonQuizClosed)
			},
		},

		"missing credential is unauthenticated": {
			arrange: func(f *fixture) inputs {
				return inputs{
					quizID:  quizID,
					answers: []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeUnauthenticated, errors.ReasonUnauthenticated)
				assertNothingWritten(t, out.store)
			},
		},

		"unknown quiz is not found": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(studentID),
					quizID:     404,
					answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeNotFound, errors.ReasonQuizNotFound)
			},
		},

		"student outside the class is denied": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(99),
					quizID:     quizID,
					answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "true"}},
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodePermissionDenied, errors.ReasonNotEnrolled)
			},
		},

		"empty submission is rejected": {
			arrange: func(f *fixture) inputs {
				return inputs{
					credential: f.token(studentID),
					quizID:     quizID,
				}
			},
			assert: func(t *testing.T, out outputs) {
				assertRejected(t, out.err, errors.CodeInvalidArgument, errors.ReasonEmptySubmission)
				assertNothingWritten(t, out.store)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			in := tt.arrange(f)

			resp, err := f.service(f.store).SubmitQuiz(context.Background(), submission.SubmitQuizRequest{
				Credential: in.credential,
				QuizID:     in.quizID,
				Answers:    in.answers,
			})

			tt.assert(t, outputs{resp: resp, err: err, store: f.store})
		})
	}
}

func TestService_SubmitQuiz_ResubmissionOverwritesGrade(t *testing.T) {
	f := newFixture(t)
	s := f.service(f.store)
	ctx := context.Background()

	submit := func(answers ...domain.SubmittedAnswer) *submission.SubmitQuizResponse {
		resp, err := s.SubmitQuiz(ctx, submission.SubmitQuizRequest{
			Credential: "Bearer " + f.token(studentID),
			QuizID:     quizID,
			Answers:    answers,
		})
		require.NoError(t, err)
		return resp
	}

	first := submit(domain.SubmittedAnswer{QuizQuestionID: 10, Answer: "True"}, domain.SubmittedAnswer{QuizQuestionID: 11, Answer: "blue"})
	second := submit(domain.SubmittedAnswer{QuizQuestionID: 10, Answer: "false"}, domain.SubmittedAnswer{QuizQuestionID: 11, Answer: "Blue"})

	assert.NotEqual(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, 1, f.store.CountGrades(quizID, studentID))
	assertGrade(t, f.store, "50")
	assert.Len(t, listResponses(t, f.store), 4, "responses accumulate across attempts")

	attempts, err := s.ListAttempts(ctx, submission.ListAttemptsRequest{Credential: f.token(studentID), QuizID: quizID})
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, first.SubmissionID, attempts[0].SubmissionID)
	assert.Equal(t, second.SubmissionID, attempts[1].SubmissionID)
	require.Len(t, attempts[1].Responses, 2)
	assert.Equal(t, "The sky is blue: true or false?", attempts[1].Responses[0].QuestionText)
}

func TestService_SubmitQuiz_ConcurrentSubmissionsKeepOneGrade(t *testing.T) {
	f := newFixture(t)
	s := f.service(f.store)

	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		answer := "true"
		if i%2 == 0 {
			answer = "false"
		}
		eg.Go(func() error {
			_, err := s.SubmitQuiz(context.Background(), submission.SubmitQuizRequest{
				Credential: f.token(studentID),
				QuizID:     quizID,
				Answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: answer}},
			})
			return err
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, 1, f.store.CountGrades(quizID, studentID))
	assert.Len(t, listResponses(t, f.store), 20)

	g, err := f.store.GetGrade(context.Background(), quizID, studentID)
	require.NoError(t, err)
	assert.True(t, g.Score.Equal(decimal.Zero) || g.Score.Equal(decimal.NewFromInt(100)))
}

func TestService_SubmitQuiz_StoreFailure(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode errors.Code
	}{
		"unexpected failure is internal": {
			err:      stderrors.New("disk full"),
			wantCode: errors.CodeInternal,
		},
		"transient failure asks the caller to retry": {
			err:      errors.Unavailable(stderrors.New("connection reset")),
			wantCode: errors.CodeUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			s := f.service(failingStore{Memory: f.store, err: tt.err})

			_, err := s.SubmitQuiz(context.Background(), submission.SubmitQuizRequest{
				Credential: f.token(studentID),
				QuizID:     quizID,
				Answers: []domain.SubmittedAnswer{
					{QuizQuestionID: 10, Answer: "true"},
					{QuizQuestionID: 11, Answer: "blue"},
				},
			})
			require.Error(t, err)

			e := errors.Convert(err)
			assert.Equal(t, tt.wantCode, e.Code)
			assertNothingWritten(t, f.store)
			assert.Empty(t, f.events(), "no event should be published for a failed submission")
		})
	}
}

func TestService_SubmitQuiz_PublishesGradeUpdated(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service(f.store).SubmitQuiz(context.Background(), submission.SubmitQuizRequest{
		Credential: f.token(studentID),
		QuizID:     quizID,
		Answers:    []domain.SubmittedAnswer{{QuizQuestionID: 11, Answer: " BLUE "}},
	})
	require.NoError(t, err)

	events := f.events()
	require.Len(t, events, 1)
	assert.Equal(t, resp.SubmissionID, events[0].SubmissionID)
	assert.Equal(t, "alice", events[0].Student.Username)
	assert.Equal(t, quizID, events[0].Grade.QuizID)
	assertScore(t, "100", events[0].Grade.Score)
}

func TestService_GetGrade(t *testing.T) {
	f := newFixture(t)
	s := f.service(f.store)
	ctx := context.Background()

	_, err := s.GetGrade(ctx, submission.GetGradeRequest{Credential: f.token(studentID), QuizID: quizID})
	assertRejected(t, err, errors.CodeNotFound, errors.ReasonGradeNotFound)

	_, err = s.SubmitQuiz(ctx, submission.SubmitQuizRequest{
		Credential: f.token(studentID),
		QuizID:     quizID,
		Answers:    []domain.SubmittedAnswer{{QuizQuestionID: 10, Answer: "TRUE"}},
	})
	require.NoError(t, err)

	g, err := s.GetGrade(ctx, submission.GetGradeRequest{Credential: f.token(studentID), QuizID: quizID})
	require.NoError(t, err)
	assertScore(t, "100", g.Score)
	assert.Equal(t, now, g.UpdateTime)
}

type fixture struct {
	store *store.Memory
	quiz  domain.Quiz
	auth  *auth.Resolver
	bus   *event.Bus

	mu     sync.Mutex
	graded []domain.EventGradeUpdated
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: store.NewMemory(),
		quiz:  domain.Quiz{ID: quizID, Name: "Colors", ClassID: classID, IsActive: true, ScheduleStart: now.Add(-time.Hour), ScheduleEnd: now.Add(time.Hour)},
		auth:  auth.NewResolver(auth.Config{Secret: "test"}),
		bus:   event.NewBus(),
	}

	f.store.PutQuiz(f.quiz)
	f.store.PutQuiz(domain.Quiz{ID: 2, Name: "Other", ClassID: 8, IsActive: true})
	f.store.PutQuestion(domain.Question{QuestionID: 101, Text: "The sky is blue: true or false?", Type: domain.QuestionTypeTrueFalse, CorrectAnswer: "true"})
	f.store.PutQuestion(domain.Question{QuestionID: 102, Text: "Color of the sky?", Type: domain.QuestionTypeIdentification, CorrectAnswer: "Blue"})
	require.NoError(t, f.store.BindQuestion(10, quizID, 101, 1))
	require.NoError(t, f.store.BindQuestion(11, quizID, 102, 2))
	require.NoError(t, f.store.BindQuestion(20, 2, 102, 1))
	f.store.Enroll(classID, studentID)

	f.bus.Subscribe(domain.EventNameGradeUpdated, func(ctx context.Context, e event.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.graded = append(f.graded, e.(domain.EventGradeUpdated))
		return nil
	})

	return f
}

func (f *fixture) service(s store.Store) *submission.Service {
	return submission.NewService(submission.Config{
		Store:    s,
		Quiz:     quiz.NewService(quiz.Config{Store: s, Auth: f.auth}),
		Engine:   grading.NewEngine(grading.Config{}),
		EventBus: f.bus,
		Now:      func() time.Time { return now },
	})
}

func (f *fixture) token(userID int64) string {
	tok, err := f.auth.Issue(domain.Identity{UserID: userID, Username: "alice", Role: domain.RoleStudent}, time.Now())
	if err != nil {
		panic(err)
	}
	return tok
}

func (f *fixture) events() []domain.EventGradeUpdated {
	f.bus.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.graded
}

type failingStore struct {
	*store.Memory
	err error
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Memory.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, failingTx{Tx: tx, err: s.err})
	})
}

// failingTx accepts responses and then fails the grade upsert, the last write of a submission.
type failingTx struct {
	store.Tx
	err error
}

func (t failingTx) UpsertGrade(context.Context, *domain.Grade) error {
	return t.err
}

func listResponses(t *testing.T, s *store.Memory) []domain.Response {
	t.Helper()
	resps, err := s.ListResponses(context.Background(), quizID, studentID)
	require.NoError(t, err)
	return resps
}

func assertGrade(t *testing.T, s *store.Memory, want string) {
	t.Helper()
	assert.Equal(t, 1, s.CountGrades(quizID, studentID))
	g, err := s.GetGrade(context.Background(), quizID, studentID)
	require.NoError(t, err)
	assertScore(t, want, g.Score)
}

func assertNothingWritten(t *testing.T, s *store.Memory) {
	t.Helper()
	assert.Empty(t, listResponses(t, s))
	assert.Zero(t, s.CountGrades(quizID, studentID))
}

func assertScore(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want score %s, got %s", want, got)
}

func assertRejected(t *testing.T, err error, code errors.Code, reason errors.Reason) {
	t.Helper()
	require.Error(t, err)
	e := errors.Convert(err)
	assert.Equal(t, code, e.Code)
	assert.Equal(t, reason, e.Reason)
}
