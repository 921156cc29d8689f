package api

import (
	"strings"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAnswerText(t *testing.T) {
	v := validator.New()
	require.NoError(t, registerValidation(v))

	tests := map[string]struct {
		answer string
		valid  bool
	}{
		"plain text":                 {answer: "Blue", valid: true},
		"empty":                      {answer: "", valid: true},
		"whitespace controls":        {answer: "line\nbreak\tand tab", valid: true},
		"bell character":             {answer: "tr\x07ue", valid: false},
		"invalid utf-8":              {answer: "\xff\xfe", valid: false},
		"4096 bytes of multi-byte":   {answer: strings.Repeat("é", 2048), valid: true},
		"4097 bytes, 2049 runes":     {answer: "a" + strings.Repeat("é", 2048), valid: false},
		"4096 runes over 4096 bytes": {answer: strings.Repeat("é", 4096), valid: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := v.Var(tc.answer, "answertext")
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
		})
	}
}

func TestRegisterBindings(t *testing.T) {
	require.NotPanics(t, registerBindings)

	err := binding.Validator.ValidateStruct(&Answer{QuestionID: 1, Answer: strings.Repeat("é", 2049)})
	assert.Error(t, err, "the gin engine should enforce the registered rule")
}
