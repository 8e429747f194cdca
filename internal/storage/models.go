package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a question status update would break
// the pending → terminal lifecycle.
var ErrInvalidTransition = errors.New("invalid question status transition")

// QuestionStatus is the lifecycle state of a submitted question.
type QuestionStatus string

const (
	StatusPending QuestionStatus = "pending"
	StatusMatched QuestionStatus = "matched"
	StatusReview  QuestionStatus = "review"
	StatusNoMatch QuestionStatus = "no_match"
)

// Terminal reports whether s is one of the final statuses a question settles in.
func (s QuestionStatus) Terminal() bool {
	return s == StatusMatched || s == StatusReview || s == StatusNoMatch
}

type Sentiment string

const (
	SentimentUp   Sentiment = "up"
	SentimentDown Sentiment = "down"
)

// Answer is a canned response plus the metadata used to score it.
type Answer struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Category   string          `json:"category,omitempty"`
	Keywords   []string        `json:"keywords"`
	AnswerType string          `json:"answerType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NewAnswer holds the caller-supplied fields of an answer. New answers are
// always created active.
type NewAnswer struct {
	Title      string
	Content    string
	Category   string
	Keywords   []string
	AnswerType string
	Data       json.RawMessage
}

type Question struct {
	ID              string          `json:"id"`
	Question        string          `json:"question"`
	Context         json.RawMessage `json:"context,omitempty"`
	Status          QuestionStatus  `json:"status"`
	MatchedAnswerID string          `json:"matchedAnswerId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// QuestionMatch records which answer a matched question resolved to.
type QuestionMatch struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	AnswerID   string    `json:"answerId"`
	Confidence string    `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Feedback is an append-only user rating. AnswerID and QuestionID are not
// checked against existing records.
type Feedback struct {
	ID         string    `json:"id"`
	AnswerID   string    `json:"answerId,omitempty"`
	QuestionID string    `json:"questionId,omitempty"`
	Question   string    `json:"question,omitempty"`
	Sentiment  Sentiment `json:"sentiment"`
	Reasons    []string  `json:"reasons"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type NewFeedback struct {
	AnswerID   string
	QuestionID string
	Question   string
	Sentiment  Sentiment
	Reasons    []string
	Comment    string
}

// checkTransition validates a status update against the current status.
func checkTransition(current, next QuestionStatus, matchedAnswerID string) error {
	if current != StatusPending || !next.Terminal() {
		return ErrInvalidTransition
	}
	if (next == StatusMatched) != (matchedAnswerID != "") {
		return ErrInvalidTransition
	}
	return nil
}
