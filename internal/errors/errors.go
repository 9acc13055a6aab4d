package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput        ErrorCode = "invalid_input"
	InvalidAmount       ErrorCode = "invalid_amount"
	InvalidAccountID    ErrorCode = "invalid_account_id"
	SameAccountTransfer ErrorCode = "same_account_transfer"
	EmptyTransfers      ErrorCode = "empty_transfers"
	ImmutableField      ErrorCode = "immutable_field"
	UnknownField        ErrorCode = "unknown_field"
	DuplicateAccount    ErrorCode = "duplicate_account"

	AccountNotFound     ErrorCode = "account_not_found"
	TransactionNotFound ErrorCode = "transaction_not_found"
	FingerprintNotFound ErrorCode = "fingerprint_not_found"

	AccountInactive   ErrorCode = "account_inactive"
	InsufficientFunds ErrorCode = "insufficient_funds"
	NonZeroBalance    ErrorCode = "non_zero_balance"
	DuplicateAudit    ErrorCode = "duplicate_fingerprint"

	VersionConflict ErrorCode = "version_conflict"
	Contention      ErrorCode = "contention"

	InternalError ErrorCode = "internal_error"
)

// Kind groups error codes by how a caller is expected to react to them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindState       Kind = "state"
	KindConflict    Kind = "conflict"
	KindContention  Kind = "contention"
	KindPersistence Kind = "persistence"
)

var codeKinds = map[ErrorCode]Kind{
	InvalidInput:        KindValidation,
	InvalidAmount:       KindValidation,
	InvalidAccountID:    KindValidation,
	SameAccountTransfer: KindValidation,
	EmptyTransfers:      KindValidation,
	ImmutableField:      KindValidation,
	UnknownField:        KindValidation,
	DuplicateAccount:    KindValidation,
	AccountNotFound:     KindNotFound,
	TransactionNotFound: KindNotFound,
	FingerprintNotFound: KindNotFound,
	AccountInactive:     KindState,
	InsufficientFunds:   KindState,
	NonZeroBalance:      KindState,
	DuplicateAudit:      KindState,
	VersionConflict:     KindConflict,
	Contention:          KindContention,
	InternalError:       KindPersistence,
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same code, so predefined errors
// match even after WithDetails produced a copy.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind returns the category of the error. Unknown codes are persistence errors.
func (e *AppError) Kind() Kind {
	if k, ok := codeKinds[e.Code]; ok {
		return k
	}
	return KindPersistence
}

func (e *AppError) HTTPStatus() int {
	switch e.Kind() {
	case KindValidation:
		if e.Code == DuplicateAccount {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusUnprocessableEntity
	case KindConflict, KindContention:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of the error carrying details; the receiver is
// left untouched so package-level errors stay immutable.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// Internal wraps an infrastructure failure as a persistence error.
func Internal(message string, err error) *AppError {
	appErr := NewAppError(InternalError, message)
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// As extracts an *AppError from err, wrapping anything else as internal.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("an unexpected error occurred", err)
}

// Predefined errors for common cases
var (
	ErrInvalidInput         = NewAppError(InvalidInput, "invalid input")
	ErrInvalidAmount        = NewAppError(InvalidAmount, "amount must be positive")
	ErrInvalidAccountID     = NewAppError(InvalidAccountID, "account id must not be empty")
	ErrSameAccountTransfer  = NewAppError(SameAccountTransfer, "cannot transfer to the same account")
	ErrEmptyTransfers       = NewAppError(EmptyTransfers, "transfers must be a non-empty list")
	ErrImmutableField       = NewAppError(ImmutableField, "field cannot be changed through an account update")
	ErrUnknownField         = NewAppError(UnknownField, "field is not updatable")
	ErrDuplicateAccount     = NewAppError(DuplicateAccount, "account already exists")
	ErrAccountNotFound      = NewAppError(AccountNotFound, "account not found")
	ErrTransactionNotFound  = NewAppError(TransactionNotFound, "transaction not found")
	ErrFingerprintNotFound  = NewAppError(FingerprintNotFound, "transaction fingerprint not found")
	ErrAccountInactive      = NewAppError(AccountInactive, "account is inactive")
	ErrInsufficientFunds    = NewAppError(InsufficientFunds, "insufficient funds")
	ErrNonZeroBalance       = NewAppError(NonZeroBalance, "cannot close account with non-zero balance")
	ErrDuplicateFingerprint = NewAppError(DuplicateAudit, "fingerprint already recorded for transaction")
	ErrConflict             = NewAppError(VersionConflict, "account was modified concurrently")
	ErrContention           = NewAppError(Contention, "too much contention on accounts, retry later")
)
