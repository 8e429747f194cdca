package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/folioqa/internal/catalog"
	"github.com/kalambet/folioqa/internal/qa"
	"github.com/kalambet/folioqa/internal/storage"
)

func newTestMCPDeps(t *testing.T, seed bool) (Deps, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	if seed {
		answers, err := catalog.Default()
		if err != nil {
			t.Fatalf("catalog.Default: %v", err)
		}
		if _, err := catalog.Seed(context.Background(), store, answers); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	return Deps{QA: qa.NewService(store)}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_AskQuestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t, true)
	handler := mcpAskQuestion(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_question", map[string]interface{}{
		"question": "What's the YTD performance vs S&P 500?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if resp["status"] != "matched" || resp["confidence"] != "high" {
		t.Errorf("response = %v", resp)
	}
}

func TestMCPTool_AskQuestion_Placeholders(t *testing.T) {
	deps, _ := newTestMCPDeps(t, true)
	handler := mcpAskQuestion(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_question", map[string]interface{}{
		"question":     "what's the {benchmark} return",
		"placeholders": `{"benchmark":"S&P 500"}`,
	}))
	if !strings.Contains(toolText(t, result), `"confidence":"medium"`) {
		t.Errorf("output = %s", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("ask_question", map[string]interface{}{
		"question":     "q",
		"placeholders": `not json`,
	}))
	if !result.IsError {
		t.Error("expected error for invalid placeholders")
	}
}

func TestMCPTool_AskQuestion_MissingQuestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	result, err := mcpAskQuestion(deps)(context.Background(), makeCallToolRequest("ask_question", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing question")
	}
}

func TestMCPTool_SubmitFeedback(t *testing.T) {
	deps, store := newTestMCPDeps(t, false)
	handler := mcpSubmitFeedback(deps)

	result, err := handler(context.Background(), makeCallToolRequest("submit_feedback", map[string]interface{}{
		"question":  "How risky am I?",
		"sentiment": "down",
		"answer_id": "a1",
		"reasons":   []interface{}{"outdated"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "Thank you for your feedback.") {
		t.Errorf("output = %s", toolText(t, result))
	}

	stored, _ := store.FeedbackForAnswer(context.Background(), "a1")
	if len(stored) != 1 || len(stored[0].Reasons) != 1 || stored[0].Reasons[0] != "outdated" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestMCPTool_SubmitFeedback_DownNeedsReason(t *testing.T) {
	deps, store := newTestMCPDeps(t, false)

	result, _ := mcpSubmitFeedback(deps)(context.Background(), makeCallToolRequest("submit_feedback", map[string]interface{}{
		"question":  "q",
		"sentiment": "down",
	}))
	if !result.IsError {
		t.Fatal("expected IsError")
	}
	if !strings.Contains(toolText(t, result), "reason or a comment") {
		t.Errorf("output = %s", toolText(t, result))
	}

	all, _ := store.AllFeedback(context.Background())
	if len(all) != 0 {
		t.Errorf("rejected feedback was stored: %+v", all)
	}
}

func TestMCPTool_ListReviewQueue(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	ctx := context.Background()

	result, _ := mcpListReviewQueue(deps)(ctx, makeCallToolRequest("list_review_queue", nil))
	if toolText(t, result) != "[]" {
		t.Errorf("empty queue output = %s", toolText(t, result))
	}

	if _, err := deps.QA.SubmitQuestion(ctx, qa.QuestionInput{Question: "Should I rebalance?"}); err != nil {
		t.Fatalf("SubmitQuestion: %v", err)
	}

	result, _ = mcpListReviewQueue(deps)(ctx, makeCallToolRequest("list_review_queue", nil))
	var queue []map[string]string
	if err := json.Unmarshal([]byte(toolText(t, result)), &queue); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(queue) != 1 || queue[0]["question"] != "Should I rebalance?" {
		t.Errorf("queue = %v", queue)
	}
}

func TestMCPResource_Answers(t *testing.T) {
	deps, _ := newTestMCPDeps(t, true)

	contents, err := mcpResourceAnswers(deps)(context.Background(), makeReadResourceRequest("catalog://answers"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "catalog://answers" || tc.MIMEType != "application/json" {
		t.Errorf("uri/mime = %q/%q", tc.URI, tc.MIMEType)
	}

	var answers []storage.Answer
	if err := json.Unmarshal([]byte(tc.Text), &answers); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(answers) != 13 {
		t.Errorf("answers = %d, want 13", len(answers))
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	deps, _ := newTestMCPDeps(t, false)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
