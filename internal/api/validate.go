package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type questionContext struct {
	Accounts      []string `json:"accounts,omitempty"`
	Timeframe     string   `json:"timeframe,omitempty"`
	SelectionMode string   `json:"selectionMode,omitempty" validate:"omitempty,oneof=accounts group"`
}

type questionRequest struct {
	Question     string            `json:"question" validate:"required,min=1"`
	Context      *questionContext  `json:"context,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
}

type answerRequest struct {
	Title      string          `json:"title" validate:"required"`
	Content    string          `json:"content" validate:"required"`
	Category   string          `json:"category,omitempty"`
	Keywords   []string        `json:"keywords,omitempty" validate:"omitempty,dive,required"`
	AnswerType string          `json:"answerType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type answerPatch struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// ReasonCodes are the accepted values of feedback reasons.
var ReasonCodes = []string{
	"incorrect_data", "outdated", "not_relevant", "unclear",
	"missing_info", "wrong_timeframe", "wrong_accounts", "other",
}

type feedbackRequest struct {
	AnswerID   string   `json:"answerId,omitempty"`
	QuestionID string   `json:"questionId,omitempty"`
	Question   string   `json:"question" validate:"required,min=1"`
	Sentiment  string   `json:"sentiment" validate:"required,oneof=up down"`
	Reasons    []string `json:"reasons,omitempty" validate:"omitempty,dive,oneof=incorrect_data outdated not_relevant unclear missing_info wrong_timeframe wrong_accounts other"`
	Comment    string   `json:"comment,omitempty" validate:"max=1000"`
}

// feedbackRule rejects negative feedback that gives neither a reason nor a comment.
func feedbackRule(sl validator.StructLevel) {
	f := sl.Current().Interface().(feedbackRequest)
	if f.Sentiment == "down" && len(f.Reasons) == 0 && strings.TrimSpace(f.Comment) == "" {
		sl.ReportError(f.Reasons, "reasons", "Reasons", "reason_or_comment", "")
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(feedbackRule, feedbackRequest{})
	return v
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure it
// writes a 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
		return false
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError(fe))
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": "Invalid request format",
			"type":    "invalid_request_error",
			"details": details,
		},
	})
	return false
}

func fieldError(fe validator.FieldError) FieldError {
	// Namespace is "<struct>.<path>"; drop the Go type name.
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "reason_or_comment":
		msg = "negative feedback needs at least one reason or a comment"
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return FieldError{Field: field, Rule: fe.Tag(), Message: msg}
}
