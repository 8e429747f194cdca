package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kalambet/folioqa/internal/qa"
	"github.com/kalambet/folioqa/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	QA *qa.Service
}

// NewHandler returns the JSON HTTP API. CORS is open to any origin and plain
// OPTIONS requests are answered with an empty 200.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type"},
		OptionsSuccessStatus: http.StatusOK,
	}).Handler)
	r.Use(plainOptions)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not_found", "no route for %s %s", r.Method, r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method %s not allowed", r.Method)
	})

	r.Get("/health", handleHealth)

	r.Post("/questions", handleSubmitQuestion(deps))
	r.Get("/questions/review", handleReviewQueue(deps))
	r.Get("/questions/{id}", handleGetQuestion(deps))

	r.Get("/answers", handleListAnswers(deps))
	r.Post("/answers", handleCreateAnswer(deps))
	r.Get("/answers/{id}", handleGetAnswer(deps))
	r.Patch("/answers/{id}", handlePatchAnswer(deps))

	r.Post("/feedback", handleSubmitFeedback(deps))
	r.Get("/feedback", handleListFeedback(deps))
	r.Get("/feedback/answer/{answerId}", handleFeedbackForAnswer(deps))
	r.Get("/feedback/{id}", handleGetFeedback(deps))

	return r
}

func plainOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSubmitQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req questionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		in := qa.QuestionInput{
			Question:     req.Question,
			Placeholders: req.Placeholders,
		}
		if req.Context != nil {
			b, err := json.Marshal(req.Context)
			if err != nil {
				internalError(w, "failed to encode question context", err)
				return
			}
			in.Context = b
		}

		resp, err := deps.QA.SubmitQuestion(r.Context(), in)
		if err != nil {
			internalError(w, "internal server error while processing question", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleReviewQueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questions, err := deps.QA.ReviewQueue(r.Context())
		if err != nil {
			internalError(w, "failed to fetch questions for review", err)
			return
		}
		if questions == nil {
			questions = []storage.Question{}
		}
		writeJSON(w, http.StatusOK, questions)
	}
}

func handleGetQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := deps.QA.GetQuestion(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "question not found")
			return
		}
		if err != nil {
			internalError(w, "failed to get question", err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleListAnswers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var (
			answers []storage.Answer
			err     error
		)
		switch {
		case query.Has("category"):
			answers, err = deps.QA.AnswersByCategory(r.Context(), query.Get("category"))
		case query.Has("q"):
			answers, err = deps.QA.SearchAnswers(r.Context(), query.Get("q"))
		default:
			answers, err = deps.QA.ListAnswers(r.Context())
		}
		if err != nil {
			internalError(w, "failed to list answers", err)
			return
		}
		if answers == nil {
			answers = []storage.Answer{}
		}
		writeJSON(w, http.StatusOK, answers)
	}
}

func handleCreateAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		data := req.Data
		if strings.TrimSpace(string(data)) == "null" {
			data = nil
		}
		a, err := deps.QA.CreateAnswer(r.Context(), storage.NewAnswer{
			Title:      req.Title,
			Content:    req.Content,
			Category:   req.Category,
			Keywords:   req.Keywords,
			AnswerType: req.AnswerType,
			Data:       data,
		})
		if err != nil {
			internalError(w, "failed to create answer", err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func handleGetAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := deps.QA.GetAnswer(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "answer not found")
			return
		}
		if err != nil {
			internalError(w, "failed to get answer", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handlePatchAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerPatch
		if !decodeAndValidate(w, r, &req) {
			return
		}

		a, err := deps.QA.SetAnswerActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "answer not found")
			return
		}
		if err != nil {
			internalError(w, "failed to update answer", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleSubmitFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		receipt, err := deps.QA.SubmitFeedback(r.Context(), storage.NewFeedback{
			AnswerID:   req.AnswerID,
			QuestionID: req.QuestionID,
			Question:   req.Question,
			Sentiment:  storage.Sentiment(req.Sentiment),
			Reasons:    req.Reasons,
			Comment:    req.Comment,
		})
		if err != nil {
			internalError(w, "internal server error while submitting feedback", err)
			return
		}
		writeJSON(w, http.StatusOK, receipt)
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedback, err := deps.QA.AllFeedback(r.Context())
		if err != nil {
			internalError(w, "failed to fetch feedback", err)
			return
		}
		writeFeedbackList(w, feedback)
	}
}

func handleFeedbackForAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedback, err := deps.QA.FeedbackForAnswer(r.Context(), chi.URLParam(r, "answerId"))
		if err != nil {
			internalError(w, "failed to fetch feedback", err)
			return
		}
		writeFeedbackList(w, feedback)
	}
}

func handleGetFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := deps.QA.GetFeedback(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "feedback not found")
			return
		}
		if err != nil {
			internalError(w, "failed to get feedback", err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func writeFeedbackList(w http.ResponseWriter, feedback []storage.Feedback) {
	if feedback == nil {
		feedback = []storage.Feedback{}
	}
	writeJSON(w, http.StatusOK, feedback)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// internalError logs err and responds with a generic 500.
func internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	httpError(w, http.StatusInternalServerError, "api_error", "%s", msg)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
