package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a process-local store backed by maps. State is lost on restart and
// is not shared between processes. Iteration follows insertion order.
type Memory struct {
	now func() time.Time

	mu            sync.RWMutex
	answers       map[string]Answer
	answerOrder   []string
	questions     map[string]Question
	questionOrder []string
	matches       map[string]QuestionMatch // keyed by question ID
	feedback      map[string]Feedback
	feedbackOrder []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock returns an empty in-memory store using now for timestamps (for testing).
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		now:       now,
		answers:   make(map[string]Answer),
		questions: make(map[string]Question),
		matches:   make(map[string]QuestionMatch),
		feedback:  make(map[string]Feedback),
	}
}

func (m *Memory) Close() error { return nil }

// --- Answers ---

func (m *Memory) CreateAnswer(_ context.Context, in NewAnswer) (Answer, error) {
	now := m.now()
	a := Answer{
		ID:         uuid.New().String(),
		Title:      in.Title,
		Content:    in.Content,
		Category:   in.Category,
		Keywords:   cloneStrings(in.Keywords),
		AnswerType: in.AnswerType,
		Data:       slices.Clone(in.Data),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[a.ID] = a
	m.answerOrder = append(m.answerOrder, a.ID)
	return copyAnswer(a), nil
}

func (m *Memory) GetAnswer(_ context.Context, id string) (Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.answers[id]
	if !ok {
		return Answer{}, ErrNotFound
	}
	return copyAnswer(a), nil
}

func (m *Memory) SetAnswerActive(_ context.Context, id string, active bool) (Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok {
		return Answer{}, ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = m.now()
	m.answers[id] = a
	return copyAnswer(a), nil
}

func (m *Memory) CountAnswers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.answers), nil
}

// ActiveAnswers returns every active answer in insertion order.
func (m *Memory) ActiveAnswers(_ context.Context) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(func(Answer) bool { return true }), nil
}

func (m *Memory) AnswersByCategory(_ context.Context, category string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(func(a Answer) bool { return a.Category == category }), nil
}

func (m *Memory) SearchAnswers(_ context.Context, query string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(func(a Answer) bool { return MatchesSearch(a, query) }), nil
}

func (m *Memory) activeLocked(keep func(Answer) bool) []Answer {
	var out []Answer
	for _, id := range m.answerOrder {
		a := m.answers[id]
		if a.IsActive && keep(a) {
			out = append(out, copyAnswer(a))
		}
	}
	return out
}

// --- Questions ---

func (m *Memory) CreateQuestion(_ context.Context, text string, qctx json.RawMessage) (Question, error) {
	now := m.now()
	q := Question{
		ID:        uuid.New().String(),
		Question:  text,
		Context:   slices.Clone(qctx),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	m.questionOrder = append(m.questionOrder, q.ID)
	return q, nil
}

func (m *Memory) GetQuestion(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

// UpdateQuestionStatus moves a pending question to a terminal status.
// matchedAnswerID must be set for StatusMatched and empty otherwise.
func (m *Memory) UpdateQuestionStatus(_ context.Context, id string, status QuestionStatus, matchedAnswerID string) (Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	if err := checkTransition(q.Status, status, matchedAnswerID); err != nil {
		return Question{}, fmt.Errorf("question %s %s → %s: %w", id, q.Status, status, err)
	}
	q.Status = status
	q.MatchedAnswerID = matchedAnswerID
	q.UpdatedAt = m.now()
	m.questions[id] = q
	return q, nil
}

func (m *Memory) QuestionsByStatus(_ context.Context, status QuestionStatus) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Question
	for _, id := range m.questionOrder {
		if q := m.questions[id]; q.Status == status {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *Memory) RecordMatch(_ context.Context, questionID, answerID, confidence string) (QuestionMatch, error) {
	qm := QuestionMatch{
		ID:         uuid.New().String(),
		QuestionID: questionID,
		AnswerID:   answerID,
		Confidence: confidence,
		CreatedAt:  m.now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[questionID] = qm
	return qm, nil
}

func (m *Memory) GetMatch(_ context.Context, questionID string) (QuestionMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qm, ok := m.matches[questionID]
	if !ok {
		return QuestionMatch{}, ErrNotFound
	}
	return qm, nil
}

// --- Feedback ---

func (m *Memory) CreateFeedback(_ context.Context, in NewFeedback) (Feedback, error) {
	f := Feedback{
		ID:         uuid.New().String(),
		AnswerID:   in.AnswerID,
		QuestionID: in.QuestionID,
		Question:   in.Question,
		Sentiment:  in.Sentiment,
		Reasons:    cloneStrings(in.Reasons),
		Comment:    in.Comment,
		CreatedAt:  m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[f.ID] = f
	m.feedbackOrder = append(m.feedbackOrder, f.ID)
	return f, nil
}

func (m *Memory) GetFeedback(_ context.Context, id string) (Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.feedback[id]
	if !ok {
		return Feedback{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) FeedbackForAnswer(_ context.Context, answerID string) ([]Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Feedback
	for _, id := range m.feedbackOrder {
		if f := m.feedback[id]; f.AnswerID == answerID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) AllFeedback(_ context.Context) ([]Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Feedback, 0, len(m.feedbackOrder))
	for _, id := range m.feedbackOrder {
		out = append(out, m.feedback[id])
	}
	return out, nil
}

func copyAnswer(a Answer) Answer {
	a.Keywords = cloneStrings(a.Keywords)
	a.Data = slices.Clone(a.Data)
	return a
}

// cloneStrings copies s, normalizing nil to an empty slice.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
