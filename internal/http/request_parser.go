package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"feeledger/internal/core"
)

const maxBodyBytes = 1 << 20

// badRequestError marks bodies that could not be decoded at all.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

// RequestParser decodes and validates JSON request bodies.
type RequestParser struct {
	validate *validator.Validate
}

func NewRequestParser() *RequestParser {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &RequestParser{validate: v}
}

// Decode reads the JSON body into dst and runs its validate tags.
func (p *RequestParser) Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var ledgerErr *core.Error
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &ledgerErr):
			// amounts reject themselves while decoding
			return err
		case errors.As(err, &maxErr):
			return &badRequestError{msg: "request body too large"}
		case errors.Is(err, io.EOF):
			return &badRequestError{msg: "request body is required"}
		default:
			return &badRequestError{msg: "invalid JSON body"}
		}
	}
	if dec.More() {
		return &badRequestError{msg: "request body must contain a single JSON object"}
	}
	return p.Validate(dst)
}

// Validate runs the struct's validate tags and reports every failure as one
// validation error.
func (p *RequestParser) Validate(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return core.Validationf("%s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	}
	return fmt.Sprintf("%s is invalid", field)
}

// pathInt reads an integer path value.
func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Validationf("%s must be a number, got %q", name, raw)
	}
	return n, nil
}

// PeriodParams names a billing period in either scheme. An academic year
// selects the academic scheme; otherwise year is required.
type PeriodParams struct {
	Month        int    `json:"month" validate:"min=1,max=12"`
	Year         int    `json:"year,omitempty" validate:"omitempty,min=1900,max=9999"`
	AcademicYear string `json:"academicYear,omitempty"`
}

// Key resolves the params to a period key.
func (p PeriodParams) Key() (core.PeriodKey, error) {
	ay := strings.TrimSpace(p.AcademicYear)
	switch {
	case ay != "" && p.Year != 0:
		return nil, core.Validationf("give either year or academicYear, not both")
	case ay != "":
		return core.NewAcademicKey(p.Month, ay)
	case p.Year == 0:
		return nil, core.Validationf("year or academicYear is required")
	}
	return core.NewCalendarKey(p.Month, p.Year)
}
