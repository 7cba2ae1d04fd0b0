package cityinfo

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength        = 50
	MaxDescriptionLength = 200
)

// FieldError names one failing field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failing field of a representation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Validate applies the point-of-interest rules to a creation body.
func (p PointOfInterestForCreation) Validate() error {
	return validatePointOfInterest(p.Name, p.Description)
}

// Validate applies the same rules to full and partial updates.
func (p PointOfInterestForUpdate) Validate() error {
	return validatePointOfInterest(p.Name, p.Description)
}

func validatePointOfInterest(name, description string) error {
	verr := &ValidationError{}
	switch {
	case strings.TrimSpace(name) == "":
		verr.add("name", "You should provide a name value.")
	case utf8.RuneCountInString(name) > MaxNameLength:
		verr.add("name", fmt.Sprintf("The field name must be a string with a maximum length of %d.", MaxNameLength))
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		verr.add("description", fmt.Sprintf("The field description must be a string with a maximum length of %d.", MaxDescriptionLength))
	}
	return verr.orNil()
}
