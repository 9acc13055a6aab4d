package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ledger-core/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := errors.As(err)

	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// amountTags are the validation tags whose failure is reported as an
// invalid amount rather than generic invalid input.
var amountTags = map[string]bool{
	"positive_amount":    true,
	"nonnegative_amount": true,
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})

		v.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
		v.RegisterValidation("nonnegative_amount", func(fl validator.FieldLevel) bool {
			str := fl.Field().String()
			if str == "" {
				return true
			}
			d, err := decimal.NewFromString(str)
			return err == nil && !d.IsNegative()
		})

		validate = v
	})
	return validate
}

// decodeAndValidate reads a JSON body into dst and checks its validate tags.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.ErrInvalidInput.WithDetails("invalid request body")
	}

	if err := getValidator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if amountTags[fe.Tag()] {
				return errors.ErrInvalidAmount.WithDetails(fe.Field())
			}
			return errors.ErrInvalidInput.WithDetails(fe.Field() + " failed '" + fe.Tag() + "' check")
		}
		return errors.ErrInvalidInput.WithDetails(err.Error())
	}
	return nil
}

// parseAmount converts an already validated decimal string. Empty means zero.
func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(s)
}
