package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/classquiz/internal/errors"
)

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[string]struct {
		err  *errors.Error
		want int
	}{
		"unauthenticated maps to 401": {
			err:  errors.New(errors.CodeUnauthenticated),
			want: http.StatusUnauthorized,
		},
		"not found maps to 404": {
			err:  errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonQuestionNotInQuiz)),
			want: http.StatusNotFound,
		},
		"failed precondition maps to 400": {
			err:  errors.New(errors.CodeFailedPrecondition, errors.WithReason(errors.ReasonQuizClosed)),
			want: http.StatusBadRequest,
		},
		"permission denied maps to 403": {
			err:  errors.New(errors.CodePermissionDenied),
			want: http.StatusForbidden,
		},
		"unavailable maps to 503": {
			err:  errors.Unavailable(fmt.Errorf("dial tcp: refused")),
			want: http.StatusServiceUnavailable,
		},
		"unknown code maps to 500": {
			err:  errors.New(errors.Code(codes.DataLoss)),
			want: http.StatusInternalServerError,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatusCode())
		})
	}
}

func TestConvert(t *testing.T) {
	t.Run("unknown error becomes internal without leaking the cause", func(t *testing.T) {
		cause := fmt.Errorf("pq: relation grades does not exist")

		e := errors.Convert(cause)

		assert.Equal(t, errors.CodeInternal, e.Code)
		assert.Equal(t, codes.Internal.String(), e.Message)
		assert.NotContains(t, e.Message, "grades")
		assert.ErrorIs(t, e, cause)
	})

	t.Run("wrapped coded error is preserved", func(t *testing.T) {
		orig := errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonQuizNotFound))

		e := errors.Convert(fmt.Errorf("load quiz: %w", orig))

		assert.Same(t, orig, e)
	})
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("submit: %w", errors.New(errors.CodeNotFound,
		errors.WithReason(errors.ReasonQuestionNotInQuiz),
		errors.WithMessagef("question 7 not part of the quiz"),
	))

	assert.True(t, stderrors.Is(err, errors.New(errors.CodeNotFound)))
	assert.True(t, stderrors.Is(err, errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonQuestionNotInQuiz))))
	assert.False(t, stderrors.Is(err, errors.New(errors.CodeNotFound, errors.WithReason(errors.ReasonQuizNotFound))))
	assert.False(t, stderrors.Is(err, errors.New(errors.CodeInternal)))
}

func TestError_GRPCStatus(t *testing.T) {
	err := errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(errors.ReasonQuizClosed),
		errors.WithMessagef("quiz is not available for submission"),
	)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Equal(t, "quiz is not available for submission", st.Message())
}
