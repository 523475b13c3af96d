package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorText(t *testing.T) {
	assert.Equal(t, "claim not found", New(CodeNotFound, "claim not found").Error())
	assert.Equal(t, "gone", (&Error{Code: CodeGone}).Error())
}

func TestWrapKeepsInnerDomainCode(t *testing.T) {
	revoked := New(CodeRevoked, "claim revoked")
	err := Wrap(revoked, CodeInternal, "fetch credential")

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CodeRevoked, de.Code)
	assert.Equal(t, "fetch credential", de.Message)
	assert.ErrorIs(t, err, revoked)
}

func TestWrapPlainErrorTakesGivenCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, CodeUnavailable, "registry lookup")

	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestIsComparesCodesOnly(t *testing.T) {
	err := fmt.Errorf("resolve: %w", New(CodeConflict, "session already resolved"))

	assert.ErrorIs(t, err, &Error{Code: CodeConflict})
	assert.NotErrorIs(t, err, &Error{Code: CodeGone})
	assert.False(t, (&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"domain error", New(CodeGone, "expired"), CodeGone},
		{"wrapped by fmt", fmt.Errorf("x: %w", New(CodeValidation, "bad")), CodeValidation},
		{"plain error", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
			assert.True(t, HasCode(tt.err, tt.want) || tt.want == CodeInternal)
		})
	}
	assert.False(t, HasCode(nil, CodeNotFound))
}
