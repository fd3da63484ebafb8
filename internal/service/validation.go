package service

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sakif/campus-clubs/internal/apperror"
)

// validate runs the input's ozzo rules and reports the first failing field
// (alphabetically, so the result is stable) as an apperror validation error.
//
// ozzo keys its errors by the struct's json tag, so Field matches what the
// client sent.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("service: validating input: %w", err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for f := range fieldErrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	field := fields[0]
	return apperror.ValidationFailed(field, fmt.Sprintf("%s %s", field, fieldErrs[field].Error()))
}
