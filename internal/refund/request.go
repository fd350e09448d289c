package refund

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// #region request

// Request is one customer's refund request after the intake layer has mapped
// their selections onto the closed enums. It is passed by value and never
// shared between pipeline runs.
type Request struct {
	ID             string      `json:"id,omitempty"`
	Category       Category    `json:"category"`
	OrderStatus    OrderStatus `json:"order_status"`
	ReasonCode     ReasonCode  `json:"reason_code"`
	OrderValue     float64     `json:"order_value"`
	ElapsedMinutes int         `json:"elapsed_minutes"`
	FreeText       string      `json:"free_text"`
}

// Summary renders the structured fields on one line for prompts and logs.
func (r Request) Summary() string {
	return fmt.Sprintf("categoria=%s status=%s motivo=%s valor=R$%.2f tempo=%dmin",
		r.Category, r.OrderStatus, r.ReasonCode, r.OrderValue, r.ElapsedMinutes)
}

// #endregion request

// #region validation

// ErrInvalidInput is matched by every *InputError.
var ErrInvalidInput = errors.New("invalid refund request")

// FieldProblem names one field that failed validation.
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InputError reports every problem found in a Request. The pipeline never
// runs for a request that produced one.
type InputError struct {
	Problems []FieldProblem
}

func (e *InputError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Validate checks field presence and enum membership. It returns nil or an
// *InputError.
func (r Request) Validate() error {
	var problems []FieldProblem
	add := func(field, msg string) {
		problems = append(problems, FieldProblem{Field: field, Message: msg})
	}

	switch {
	case r.Category == "":
		add("category", "required")
	case !r.Category.Valid():
		add("category", fmt.Sprintf("unknown value %q", r.Category))
	}
	switch {
	case r.OrderStatus == "":
		add("order_status", "required")
	case !r.OrderStatus.Valid():
		add("order_status", fmt.Sprintf("unknown value %q", r.OrderStatus))
	}
	switch {
	case r.ReasonCode == "":
		add("reason_code", "required")
	case !r.ReasonCode.Valid():
		add("reason_code", fmt.Sprintf("unknown value %q", r.ReasonCode))
	}
	if math.IsNaN(r.OrderValue) || math.IsInf(r.OrderValue, 0) {
		add("order_value", "must be a finite number")
	} else if r.OrderValue < 0 {
		add("order_value", "must be >= 0")
	}
	if r.ElapsedMinutes < 0 {
		add("elapsed_minutes", "must be >= 0")
	}

	if len(problems) > 0 {
		return &InputError{Problems: problems}
	}
	return nil
}

// #endregion validation
