package dto

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. It reads the same `binding` tags gin uses,
// so requests built outside HTTP (CLI, tests) get identical checks.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.SetTagName("binding")
	})
	return validate
}

// Validate checks req and returns an InvalidRequest error listing the failed fields.
func Validate(req any) error {
	err := Validator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.InvalidRequest, err, "invalid request")
	}
	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperrors.New(apperrors.InvalidRequest, strings.Join(msgs, "; ")).WithDetails(fields)
}
