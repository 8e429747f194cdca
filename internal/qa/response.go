package qa

import (
	"encoding/json"

	"github.com/kalambet/folioqa/internal/classify"
	"github.com/kalambet/folioqa/internal/matcher"
	"github.com/kalambet/folioqa/internal/storage"
)

// Response is the outcome of a question submission: one of Matched, Review
// or NoMatch. Every variant serializes with the question id and status.
type Response interface {
	QuestionID() string
	Status() storage.QuestionStatus
	isResponse()
}

// AnswerView is the part of an answer returned to the asker.
type AnswerView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Category   string          `json:"category,omitempty"`
	AnswerType string          `json:"answerType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func viewOf(a storage.Answer) AnswerView {
	return AnswerView{
		ID:         a.ID,
		Title:      a.Title,
		Content:    a.Content,
		Category:   a.Category,
		AnswerType: a.AnswerType,
		Data:       a.Data,
	}
}

// FallbackData is the data payload of a synthetic fallback answer.
type FallbackData struct {
	FallbackType classify.Type `json:"fallbackType"`
	ActionText   string        `json:"actionText,omitempty"`
	IsUnmatched  bool          `json:"isUnmatched"`
}

// FallbackCategory is the category of every synthetic fallback answer.
const FallbackCategory = "Fallback"

// Matched is returned when a catalog answer scored above the threshold.
type Matched struct {
	ID         string
	Answer     AnswerView
	Confidence matcher.Confidence
	Message    string
}

func (m Matched) QuestionID() string { return m.ID }
func (Matched) Status() storage.QuestionStatus { return storage.StatusMatched }
func (Matched) isResponse() {}

func (m Matched) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string                 `json:"id"`
		Status     storage.QuestionStatus `json:"status"`
		Answer     AnswerView             `json:"answer"`
		Confidence matcher.Confidence     `json:"confidence"`
		Message    string                 `json:"message"`
	}{m.ID, m.Status(), m.Answer, m.Confidence, m.Message})
}

// Review is returned when the question was routed to the advisor queue.
// It carries no answer.
type Review struct {
	ID      string
	Message string
}

func (r Review) QuestionID() string { return r.ID }
func (Review) Status() storage.QuestionStatus { return storage.StatusReview }
func (Review) isResponse() {}

func (r Review) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string                 `json:"id"`
		Status  storage.QuestionStatus `json:"status"`
		Message string                 `json:"message"`
	}{r.ID, r.Status(), r.Message})
}

// NoMatch is returned with a synthetic fallback answer describing why the
// question could not be answered.
type NoMatch struct {
	ID      string
	Answer  AnswerView
	Message string
}

func (n NoMatch) QuestionID() string { return n.ID }
func (NoMatch) Status() storage.QuestionStatus { return storage.StatusNoMatch }
func (NoMatch) isResponse() {}

func (n NoMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string                 `json:"id"`
		Status  storage.QuestionStatus `json:"status"`
		Answer  AnswerView             `json:"answer"`
		Message string                 `json:"message"`
	}{n.ID, n.Status(), n.Answer, n.Message})
}

func fallbackAnswer(c classify.Result) (AnswerView, error) {
	data, err := json.Marshal(FallbackData{
		FallbackType: c.Type,
		ActionText:   c.ActionText,
		IsUnmatched:  true,
	})
	if err != nil {
		return AnswerView{}, err
	}
	return AnswerView{
		ID:         "fallback-" + string(c.Type),
		Title:      c.Type.Title(),
		Content:    c.Message,
		Category:   FallbackCategory,
		AnswerType: string(c.Type),
		Data:       data,
	}, nil
}
