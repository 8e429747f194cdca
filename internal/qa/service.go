// Package qa runs the question and feedback lifecycle on top of an answer store.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/folioqa/internal/classify"
	"github.com/kalambet/folioqa/internal/matcher"
	"github.com/kalambet/folioqa/internal/storage"
)

// Store is the persistence the lifecycle needs. Both storage.Memory and
// storage.SQLStore satisfy it.
type Store interface {
	CreateAnswer(ctx context.Context, in storage.NewAnswer) (storage.Answer, error)
	GetAnswer(ctx context.Context, id string) (storage.Answer, error)
	SetAnswerActive(ctx context.Context, id string, active bool) (storage.Answer, error)
	ActiveAnswers(ctx context.Context) ([]storage.Answer, error)
	AnswersByCategory(ctx context.Context, category string) ([]storage.Answer, error)
	SearchAnswers(ctx context.Context, query string) ([]storage.Answer, error)

	CreateQuestion(ctx context.Context, text string, qctx json.RawMessage) (storage.Question, error)
	GetQuestion(ctx context.Context, id string) (storage.Question, error)
	UpdateQuestionStatus(ctx context.Context, id string, status storage.QuestionStatus, matchedAnswerID string) (storage.Question, error)
	QuestionsByStatus(ctx context.Context, status storage.QuestionStatus) ([]storage.Question, error)
	RecordMatch(ctx context.Context, questionID, answerID, confidence string) (storage.QuestionMatch, error)
	GetMatch(ctx context.Context, questionID string) (storage.QuestionMatch, error)

	CreateFeedback(ctx context.Context, in storage.NewFeedback) (storage.Feedback, error)
	GetFeedback(ctx context.Context, id string) (storage.Feedback, error)
	FeedbackForAnswer(ctx context.Context, answerID string) ([]storage.Feedback, error)
	AllFeedback(ctx context.Context) ([]storage.Feedback, error)
}

const (
	thanksUp   = "Thank you for your positive feedback!"
	thanksDown = "Thank you for your feedback. We'll use this to improve our responses."
)

// Service answers questions and records feedback.
type Service struct {
	store   Store
	matcher *matcher.Matcher
	logger  *slog.Logger
}

func NewService(store Store) *Service {
	return &Service{
		store:   store,
		matcher: matcher.New(store),
		logger:  slog.Default(),
	}
}

// QuestionInput is a question submission.
type QuestionInput struct {
	Question     string
	Context      json.RawMessage
	Placeholders map[string]string
}

// SubmitQuestion records a pending question, resolves it against the catalog
// or the fallback classifier, and settles its status exactly once.
func (s *Service) SubmitQuestion(ctx context.Context, in QuestionInput) (Response, error) {
	q, err := s.store.CreateQuestion(ctx, in.Question, in.Context)
	if err != nil {
		return nil, fmt.Errorf("creating question: %w", err)
	}

	match, ok, err := s.matcher.FindBestMatch(ctx, in.Question, in.Placeholders)
	if err != nil {
		return nil, fmt.Errorf("matching question %s: %w", q.ID, err)
	}

	if ok {
		if _, err := s.store.UpdateQuestionStatus(ctx, q.ID, storage.StatusMatched, match.Answer.ID); err != nil {
			return nil, fmt.Errorf("marking question %s matched: %w", q.ID, err)
		}
		if _, err := s.store.RecordMatch(ctx, q.ID, match.Answer.ID, string(match.Confidence)); err != nil {
			return nil, fmt.Errorf("recording match for %s: %w", q.ID, err)
		}
		s.logger.Info("question matched",
			"question_id", q.ID, "answer_id", match.Answer.ID,
			"score", match.Score, "confidence", match.Confidence)
		return Matched{
			ID:         q.ID,
			Answer:     viewOf(match.Answer),
			Confidence: match.Confidence,
			Message:    fmt.Sprintf("Found %s confidence match", match.Confidence),
		}, nil
	}

	c := classify.Classify(in.Question)
	if c.Type.NeedsReview() {
		if _, err := s.store.UpdateQuestionStatus(ctx, q.ID, storage.StatusReview, ""); err != nil {
			return nil, fmt.Errorf("queueing question %s for review: %w", q.ID, err)
		}
		s.logger.Info("question queued for review", "question_id", q.ID)
		return Review{ID: q.ID, Message: c.Message}, nil
	}

	answer, err := fallbackAnswer(c)
	if err != nil {
		return nil, fmt.Errorf("building fallback answer: %w", err)
	}
	if _, err := s.store.UpdateQuestionStatus(ctx, q.ID, storage.StatusNoMatch, ""); err != nil {
		return nil, fmt.Errorf("marking question %s unmatched: %w", q.ID, err)
	}
	s.logger.Info("question unmatched", "question_id", q.ID, "fallback", c.Type)
	return NoMatch{ID: q.ID, Answer: answer, Message: c.Message}, nil
}

// FeedbackReceipt is the stored feedback plus a thank-you message.
type FeedbackReceipt struct {
	ID       string           `json:"id"`
	Message  string           `json:"message"`
	Feedback storage.Feedback `json:"feedback"`
}

// SubmitFeedback appends a feedback record. Referenced answer and question ids
// are stored as given without existence checks.
func (s *Service) SubmitFeedback(ctx context.Context, in storage.NewFeedback) (FeedbackReceipt, error) {
	f, err := s.store.CreateFeedback(ctx, in)
	if err != nil {
		return FeedbackReceipt{}, fmt.Errorf("creating feedback: %w", err)
	}

	msg := thanksDown
	if f.Sentiment == storage.SentimentUp {
		msg = thanksUp
	}
	s.logger.Debug("feedback recorded", "feedback_id", f.ID, "answer_id", f.AnswerID, "sentiment", f.Sentiment)
	return FeedbackReceipt{ID: f.ID, Message: msg, Feedback: f}, nil
}

// QuestionDetail is a question with its match record, if it was matched.
type QuestionDetail struct {
	storage.Question
	Match *storage.QuestionMatch `json:"match,omitempty"`
}

func (s *Service) GetQuestion(ctx context.Context, id string) (QuestionDetail, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return QuestionDetail{}, err
	}
	d := QuestionDetail{Question: q}
	if q.Status != storage.StatusMatched {
		return d, nil
	}

	m, err := s.store.GetMatch(ctx, id)
	switch {
	case err == nil:
		d.Match = &m
	case !errors.Is(err, storage.ErrNotFound):
		return QuestionDetail{}, fmt.Errorf("loading match for %s: %w", id, err)
	}
	return d, nil
}

// ReviewQueue lists questions waiting for an advisor, oldest first.
func (s *Service) ReviewQueue(ctx context.Context) ([]storage.Question, error) {
	return s.store.QuestionsByStatus(ctx, storage.StatusReview)
}

func (s *Service) ListAnswers(ctx context.Context) ([]storage.Answer, error) {
	return s.store.ActiveAnswers(ctx)
}

func (s *Service) AnswersByCategory(ctx context.Context, category string) ([]storage.Answer, error) {
	return s.store.AnswersByCategory(ctx, category)
}

// SearchAnswers returns active answers containing any whitespace-separated
// term of query. A blank query returns every active answer.
func (s *Service) SearchAnswers(ctx context.Context, query string) ([]storage.Answer, error) {
	return s.store.SearchAnswers(ctx, query)
}

func (s *Service) GetAnswer(ctx context.Context, id string) (storage.Answer, error) {
	return s.store.GetAnswer(ctx, id)
}

func (s *Service) CreateAnswer(ctx context.Context, in storage.NewAnswer) (storage.Answer, error) {
	a, err := s.store.CreateAnswer(ctx, in)
	if err != nil {
		return storage.Answer{}, fmt.Errorf("creating answer: %w", err)
	}
	s.logger.Info("answer created", "answer_id", a.ID, "title", a.Title)
	return a, nil
}

func (s *Service) SetAnswerActive(ctx context.Context, id string, active bool) (storage.Answer, error) {
	return s.store.SetAnswerActive(ctx, id, active)
}

func (s *Service) GetFeedback(ctx context.Context, id string) (storage.Feedback, error) {
	return s.store.GetFeedback(ctx, id)
}

func (s *Service) FeedbackForAnswer(ctx context.Context, answerID string) ([]storage.Feedback, error) {
	return s.store.FeedbackForAnswer(ctx, answerID)
}

func (s *Service) AllFeedback(ctx context.Context) ([]storage.Feedback, error) {
	return s.store.AllFeedback(ctx)
}
