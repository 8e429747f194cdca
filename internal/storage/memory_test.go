package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// contractStore is the method set shared by Memory and SQLStore.
type contractStore interface {
	CreateAnswer(ctx context.Context, in NewAnswer) (Answer, error)
	GetAnswer(ctx context.Context, id string) (Answer, error)
	SetAnswerActive(ctx context.Context, id string, active bool) (Answer, error)
	CountAnswers(ctx context.Context) (int, error)
	ActiveAnswers(ctx context.Context) ([]Answer, error)
	AnswersByCategory(ctx context.Context, category string) ([]Answer, error)
	SearchAnswers(ctx context.Context, query string) ([]Answer, error)
	CreateQuestion(ctx context.Context, text string, qctx json.RawMessage) (Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)
	UpdateQuestionStatus(ctx context.Context, id string, status QuestionStatus, matchedAnswerID string) (Question, error)
	QuestionsByStatus(ctx context.Context, status QuestionStatus) ([]Question, error)
	RecordMatch(ctx context.Context, questionID, answerID, confidence string) (QuestionMatch, error)
	GetMatch(ctx context.Context, questionID string) (QuestionMatch, error)
	CreateFeedback(ctx context.Context, in NewFeedback) (Feedback, error)
	GetFeedback(ctx context.Context, id string) (Feedback, error)
	FeedbackForAnswer(ctx context.Context, answerID string) ([]Feedback, error)
	AllFeedback(ctx context.Context) ([]Feedback, error)
}

func runStoreContract(t *testing.T, open func(t *testing.T) contractStore) {
	ctx := context.Background()

	t.Run("AnswerRoundTrip", func(t *testing.T) {
		s := open(t)
		created, err := s.CreateAnswer(ctx, NewAnswer{
			Title:      "Risk Metrics",
			Content:    "Beta is 0.95",
			Category:   "Risk",
			Keywords:   []string{"risk", "beta"},
			AnswerType: "risk",
			Data:       json.RawMessage(`{"beta":0.95}`),
		})
		if err != nil {
			t.Fatalf("CreateAnswer: %v", err)
		}
		if !created.IsActive {
			t.Error("new answer should be active")
		}

		got, err := s.GetAnswer(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetAnswer: %v", err)
		}
		if got.Title != "Risk Metrics" || got.Category != "Risk" || got.AnswerType != "risk" {
			t.Errorf("GetAnswer = %+v", got)
		}
		if len(got.Keywords) != 2 || got.Keywords[1] != "beta" {
			t.Errorf("Keywords = %v, want [risk beta]", got.Keywords)
		}
		var data map[string]float64
		if err := json.Unmarshal(got.Data, &data); err != nil || data["beta"] != 0.95 {
			t.Errorf("Data = %s (err %v)", got.Data, err)
		}
	})

	t.Run("GetAnswerNotFound", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetAnswer(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetAnswer(missing) err = %v, want ErrNotFound", err)
		}
		if _, err := s.SetAnswerActive(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
			t.Errorf("SetAnswerActive(missing) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("InactiveExcluded", func(t *testing.T) {
		s := open(t)
		a1, _ := s.CreateAnswer(ctx, NewAnswer{Title: "First", Content: "dividend yield", Category: "Income"})
		a2, _ := s.CreateAnswer(ctx, NewAnswer{Title: "Second", Content: "dividend growth", Category: "Income"})
		a3, _ := s.CreateAnswer(ctx, NewAnswer{Title: "Third", Content: "bonds", Category: "Fixed Income"})

		if _, err := s.SetAnswerActive(ctx, a2.ID, false); err != nil {
			t.Fatalf("SetAnswerActive: %v", err)
		}

		active, _ := s.ActiveAnswers(ctx)
		if ids := answerIDs(active); fmt.Sprint(ids) != fmt.Sprint([]string{a1.ID, a3.ID}) {
			t.Errorf("ActiveAnswers = %v, want [%s %s]", ids, a1.ID, a3.ID)
		}

		byCat, _ := s.AnswersByCategory(ctx, "Income")
		if ids := answerIDs(byCat); len(ids) != 1 || ids[0] != a1.ID {
			t.Errorf("AnswersByCategory(Income) = %v, want [%s]", ids, a1.ID)
		}

		found, _ := s.SearchAnswers(ctx, "dividend")
		if ids := answerIDs(found); len(ids) != 1 || ids[0] != a1.ID {
			t.Errorf("SearchAnswers(dividend) = %v, want [%s]", ids, a1.ID)
		}

		n, _ := s.CountAnswers(ctx)
		if n != 3 {
			t.Errorf("CountAnswers = %d, want 3 (inactive still counted)", n)
		}
	})

	t.Run("QuestionLifecycle", func(t *testing.T) {
		s := open(t)
		q, err := s.CreateQuestion(ctx, "How am I doing?", json.RawMessage(`{"timeframe":"ytd"}`))
		if err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
		if q.Status != StatusPending {
			t.Errorf("Status = %q, want pending", q.Status)
		}

		updated, err := s.UpdateQuestionStatus(ctx, q.ID, StatusMatched, "ans-1")
		if err != nil {
			t.Fatalf("UpdateQuestionStatus: %v", err)
		}
		if updated.Status != StatusMatched || updated.MatchedAnswerID != "ans-1" {
			t.Errorf("updated = %+v", updated)
		}
		if string(updated.Context) != `{"timeframe":"ytd"}` {
			t.Errorf("Context = %s", updated.Context)
		}

		_, err = s.UpdateQuestionStatus(ctx, q.ID, StatusReview, "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("second update err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("TransitionRules", func(t *testing.T) {
		s := open(t)
		q, _ := s.CreateQuestion(ctx, "q", nil)

		cases := []struct {
			name    string
			status  QuestionStatus
			matchID string
		}{
			{"matched without answer", StatusMatched, ""},
			{"review with answer", StatusReview, "a1"},
			{"back to pending", StatusPending, ""},
		}
		for _, tc := range cases {
			if _, err := s.UpdateQuestionStatus(ctx, q.ID, tc.status, tc.matchID); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s: err = %v, want ErrInvalidTransition", tc.name, err)
			}
		}
		if _, err := s.UpdateQuestionStatus(ctx, "missing", StatusReview, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing question err = %v, want ErrNotFound", err)
		}
	})

	t.Run("QuestionsByStatus", func(t *testing.T) {
		s := open(t)
		q1, _ := s.CreateQuestion(ctx, "one", nil)
		q2, _ := s.CreateQuestion(ctx, "two", nil)
		q3, _ := s.CreateQuestion(ctx, "three", nil)
		s.UpdateQuestionStatus(ctx, q1.ID, StatusReview, "")
		s.UpdateQuestionStatus(ctx, q2.ID, StatusNoMatch, "")
		s.UpdateQuestionStatus(ctx, q3.ID, StatusReview, "")

		review, err := s.QuestionsByStatus(ctx, StatusReview)
		if err != nil {
			t.Fatalf("QuestionsByStatus: %v", err)
		}
		if len(review) != 2 || review[0].ID != q1.ID || review[1].ID != q3.ID {
			t.Errorf("review queue = %+v, want q1, q3", review)
		}
	})

	t.Run("MatchRecord", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetMatch(ctx, "q1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetMatch before record err = %v, want ErrNotFound", err)
		}
		if _, err := s.RecordMatch(ctx, "q1", "a1", "high"); err != nil {
			t.Fatalf("RecordMatch: %v", err)
		}
		m, err := s.GetMatch(ctx, "q1")
		if err != nil {
			t.Fatalf("GetMatch: %v", err)
		}
		if m.AnswerID != "a1" || m.Confidence != "high" {
			t.Errorf("match = %+v", m)
		}
	})

	t.Run("Feedback", func(t *testing.T) {
		s := open(t)
		f1, err := s.CreateFeedback(ctx, NewFeedback{AnswerID: "a1", Question: "q", Sentiment: SentimentUp})
		if err != nil {
			t.Fatalf("CreateFeedback: %v", err)
		}
		if f1.Reasons == nil {
			t.Error("Reasons should be normalized to an empty slice")
		}
		f2, _ := s.CreateFeedback(ctx, NewFeedback{AnswerID: "nonexistent", Sentiment: SentimentDown, Reasons: []string{"outdated"}})
		f3, _ := s.CreateFeedback(ctx, NewFeedback{AnswerID: "a1", Sentiment: SentimentDown, Comment: "stale"})

		forA1, _ := s.FeedbackForAnswer(ctx, "a1")
		if len(forA1) != 2 || forA1[0].ID != f1.ID || forA1[1].ID != f3.ID {
			t.Errorf("FeedbackForAnswer(a1) = %+v", forA1)
		}

		all, _ := s.AllFeedback(ctx)
		if len(all) != 3 || all[1].ID != f2.ID {
			t.Errorf("AllFeedback = %+v", all)
		}

		got, err := s.GetFeedback(ctx, f2.ID)
		if err != nil {
			t.Fatalf("GetFeedback: %v", err)
		}
		if len(got.Reasons) != 1 || got.Reasons[0] != "outdated" {
			t.Errorf("Reasons = %v", got.Reasons)
		}
		if _, err := s.GetFeedback(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetFeedback(missing) err = %v, want ErrNotFound", err)
		}
	})
}

func answerIDs(answers []Answer) []string {
	ids := make([]string, len(answers))
	for i, a := range answers {
		ids[i] = a.ID
	}
	return ids
}

func TestMemory_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) contractStore { return NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.CreateAnswer(ctx, NewAnswer{Title: "t", Content: "c", Keywords: []string{"x"}})

	a.Keywords[0] = "mutated"
	got, _ := m.GetAnswer(ctx, a.ID)
	if got.Keywords[0] != "x" {
		t.Errorf("stored keywords mutated through returned value: %v", got.Keywords)
	}
}

func TestMemory_ConcurrentSubmissions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := m.CreateQuestion(ctx, fmt.Sprintf("q%d", i), nil)
			if err != nil {
				t.Errorf("CreateQuestion: %v", err)
				return
			}
			if _, err := m.UpdateQuestionStatus(ctx, q.ID, StatusNoMatch, ""); err != nil {
				t.Errorf("UpdateQuestionStatus: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := m.QuestionsByStatus(ctx, StatusNoMatch)
	if len(got) != 50 {
		t.Errorf("no_match questions = %d, want 50", len(got))
	}
}

func TestMatchesSearch(t *testing.T) {
	a := Answer{Title: "Tax Efficiency", Content: "Harvested losses", Category: "Tax", Keywords: []string{"harvesting"}}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"TAX", true},
		{"crypto harvest", true},
		{"crypto", false},
	}
	for _, tt := range tests {
		if got := MatchesSearch(a, tt.query); got != tt.want {
			t.Errorf("MatchesSearch(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
