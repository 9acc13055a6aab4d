package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailsKeepsIdentity(t *testing.T) {
	err := ErrInsufficientFunds.WithDetails("balance 3")

	assert.True(t, stderrors.Is(err, ErrInsufficientFunds))
	assert.False(t, stderrors.Is(err, ErrAccountInactive))
	assert.Empty(t, ErrInsufficientFunds.Details)
	assert.Equal(t, "insufficient_funds: insufficient funds (balance 3)", err.Error())
}

func TestIsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("transfer: %w", ErrAccountNotFound.WithDetails("x"))
	assert.True(t, stderrors.Is(wrapped, ErrAccountNotFound))
	assert.Equal(t, AccountNotFound, As(wrapped).Code)
}

func TestAsWrapsForeignErrors(t *testing.T) {
	appErr := As(stderrors.New("connection reset"))
	assert.Equal(t, InternalError, appErr.Code)
	assert.Equal(t, "connection reset", appErr.Details)
	assert.Nil(t, As(nil))
}

func TestKindsAndStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		kind   Kind
		status int
	}{
		{ErrInvalidAmount, KindValidation, http.StatusBadRequest},
		{ErrImmutableField, KindValidation, http.StatusBadRequest},
		{ErrDuplicateAccount, KindValidation, http.StatusConflict},
		{ErrAccountNotFound, KindNotFound, http.StatusNotFound},
		{ErrFingerprintNotFound, KindNotFound, http.StatusNotFound},
		{ErrInsufficientFunds, KindState, http.StatusUnprocessableEntity},
		{ErrNonZeroBalance, KindState, http.StatusUnprocessableEntity},
		{ErrConflict, KindConflict, http.StatusConflict},
		{ErrContention, KindContention, http.StatusConflict},
		{Internal("boom", nil), KindPersistence, http.StatusInternalServerError},
		{NewAppError("something_new", "unmapped"), KindPersistence, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind())
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
		})
	}
}
