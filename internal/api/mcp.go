package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/folioqa/internal/qa"
	"github.com/kalambet/folioqa/internal/storage"
)

// NewMCPServer creates an MCP server exposing question answering, feedback and
// the answer catalog as tools and resources.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"folioqa",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("folioqa answers portfolio questions from a catalog of canned analyses and records feedback on the answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Ask a portfolio question. Returns a matched catalog answer, a fallback answer, or a notice that the question went to the advisor review queue."),
			mcp.WithString("question", mcp.Description("The question text"), mcp.Required()),
			mcp.WithString("placeholders", mcp.Description(`Optional JSON object of {name} substitutions, e.g. {"benchmark":"S&P 500"}`)),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Rate an answer up or down. Down ratings need a reason or a comment."),
			mcp.WithString("question", mcp.Description("The question the answer responded to"), mcp.Required()),
			mcp.WithString("sentiment", mcp.Description("up or down"), mcp.Required(), mcp.Enum("up", "down")),
			mcp.WithString("answer_id", mcp.Description("ID of the rated answer")),
			mcp.WithString("question_id", mcp.Description("ID of the submitted question")),
			mcp.WithArray("reasons", mcp.Description("Reason codes: "+strings.Join(ReasonCodes, ", "))),
			mcp.WithString("comment", mcp.Description("Free-text comment, at most 1000 characters")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_review_queue",
			mcp.WithDescription("List questions waiting for an advisor, oldest first."),
		),
		mcpListReviewQueue(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://answers",
			"Answer Catalog",
			mcp.WithResourceDescription("All active catalog answers as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAnswers(deps),
	)

	return s
}

func mcpAskQuestion(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || question == "" {
			return mcpError("question is required"), nil
		}

		var placeholders map[string]string
		if raw := req.GetString("placeholders", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &placeholders); err != nil {
				return mcpError(fmt.Sprintf("invalid placeholders JSON: %v", err)), nil
			}
		}

		resp, err := deps.QA.SubmitQuestion(ctx, qa.QuestionInput{Question: question, Placeholders: placeholders})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to process question: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fr := feedbackRequest{
			AnswerID:   req.GetString("answer_id", ""),
			QuestionID: req.GetString("question_id", ""),
			Question:   req.GetString("question", ""),
			Sentiment:  req.GetString("sentiment", ""),
			Reasons:    req.GetStringSlice("reasons", nil),
			Comment:    req.GetString("comment", ""),
		}
		if err := validate.Struct(fr); err != nil {
			return mcpError(validationSummary(err)), nil
		}

		receipt, err := deps.QA.SubmitFeedback(ctx, storage.NewFeedback{
			AnswerID:   fr.AnswerID,
			QuestionID: fr.QuestionID,
			Question:   fr.Question,
			Sentiment:  storage.Sentiment(fr.Sentiment),
			Reasons:    fr.Reasons,
			Comment:    fr.Comment,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to submit feedback: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s (feedback %s)", receipt.Message, receipt.ID)), nil
	}
}

func mcpListReviewQueue(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		questions, err := deps.QA.ReviewQueue(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list review queue: %v", err)), nil
		}
		if len(questions) == 0 {
			return mcpText("[]"), nil
		}

		type queued struct {
			ID       string `json:"id"`
			Question string `json:"question"`
			AskedAt  string `json:"asked_at"`
		}
		out := make([]queued, len(questions))
		for i, q := range questions {
			out[i] = queued{ID: q.ID, Question: q.Question, AskedAt: q.CreatedAt.Format(time.RFC3339)}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal review queue: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceAnswers(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		answers, err := deps.QA.ListAnswers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list answers: %w", err)
		}
		if answers == nil {
			answers = []storage.Answer{}
		}

		b, err := json.Marshal(answers)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal answers: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// validationSummary flattens validator errors into one line.
func validationSummary(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fieldError(fe).Message
	}
	return strings.Join(msgs, "; ")
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
