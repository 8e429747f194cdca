package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/folioqa/internal/config"
)

// --- ask ---

type answerView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Category   string          `json:"category"`
	AnswerType string          `json:"answerType"`
	Data       json.RawMessage `json:"data"`
}

type askResult struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Answer     *answerView `json:"answer"`
	Confidence string      `json:"confidence"`
	Message    string      `json:"message"`
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a portfolio question",
		Long: `Ask a portfolio question.

Examples:
  folioqa ask "What's the YTD performance vs S&P 500?"
  folioqa ask "How did I do vs {benchmark}?" --placeholder benchmark="S&P 500"
  folioqa ask "Show me dividend income" --accounts ira,brokerage --timeframe ytd`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placeholders, _ := cmd.Flags().GetStringToString("placeholder")
			accounts, _ := cmd.Flags().GetStringSlice("accounts")
			timeframe, _ := cmd.Flags().GetString("timeframe")
			asJSON, _ := cmd.Flags().GetBool("json")

			req := map[string]any{"question": strings.Join(args, " ")}
			if len(placeholders) > 0 {
				req["placeholders"] = placeholders
			}
			if len(accounts) > 0 || timeframe != "" {
				qctx := map[string]any{}
				if len(accounts) > 0 {
					qctx["accounts"] = accounts
					qctx["selectionMode"] = "accounts"
				}
				if timeframe != "" {
					qctx["timeframe"] = timeframe
				}
				req["context"] = qctx
			}

			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/questions", req)
			if err != nil {
				return err
			}

			var raw json.RawMessage
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd.OutOrStdout(), raw)
			}

			var res askResult
			if err := json.Unmarshal(raw, &res); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}
			printAskResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringToString("placeholder", nil, "placeholder substitution, name=value (repeatable)")
	cmd.Flags().StringSlice("accounts", nil, "comma-separated account IDs for context")
	cmd.Flags().String("timeframe", "", "timeframe for context, e.g. ytd")
	cmd.Flags().Bool("json", false, "print the raw JSON response")
	return cmd
}

func printAskResult(w io.Writer, res askResult) {
	fmt.Fprintf(w, "%s %s\n", colorize(statusColor(res.Status), res.Status), colorize(colorCyan, res.ID))
	if res.Answer != nil {
		printField(w, "Answer", "%s", colorize(colorBold, res.Answer.Title))
		if res.Confidence != "" {
			printField(w, "Confidence", "%s", colorize(statusColor(res.Confidence), res.Confidence))
		}
		fmt.Fprintf(w, "\n%s\n", res.Answer.Content)
	}
	if res.Message != "" {
		fmt.Fprintf(w, "\n%s\n", res.Message)
	}
}

// --- feedback ---

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <question>",
		Short: "Rate an answer",
		Long: `Rate an answer up or down.

Examples:
  folioqa feedback "What's my YTD?" --answer <id>
  folioqa feedback "What's my YTD?" --answer <id> --down --reason outdated --comment "numbers are from March"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answerID, _ := cmd.Flags().GetString("answer")
			questionID, _ := cmd.Flags().GetString("question-id")
			down, _ := cmd.Flags().GetBool("down")
			reasons, _ := cmd.Flags().GetStringSlice("reason")
			comment, _ := cmd.Flags().GetString("comment")

			sentiment := "up"
			if down {
				sentiment = "down"
				if len(reasons) == 0 && comment == "" {
					return fmt.Errorf("--down needs at least one --reason or a --comment")
				}
			}

			req := map[string]any{
				"question":  strings.Join(args, " "),
				"sentiment": sentiment,
			}
			if answerID != "" {
				req["answerId"] = answerID
			}
			if questionID != "" {
				req["questionId"] = questionID
			}
			if len(reasons) > 0 {
				req["reasons"] = reasons
			}
			if comment != "" {
				req["comment"] = comment
			}

			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/feedback", req)
			if err != nil {
				return err
			}

			var receipt struct {
				ID      string `json:"id"`
				Message string `json:"message"`
			}
			if err := decodeJSON(resp, &receipt); err != nil {
				return err
			}

			printSuccess("%s", receipt.Message)
			fmt.Fprintln(cmd.OutOrStdout(), receipt.ID)
			return nil
		},
	}
	cmd.Flags().String("answer", "", "ID of the rated answer")
	cmd.Flags().String("question-id", "", "ID of the submitted question")
	cmd.Flags().Bool("down", false, "rate the answer down")
	cmd.Flags().StringSlice("reason", nil, "reason code for a down rating (repeatable)")
	cmd.Flags().String("comment", "", "free-text comment")
	return cmd
}

// --- answers ---

func newAnswersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answers",
		Short: "Manage the answer catalog",
	}
	cmd.AddCommand(newAnswersListCmd(), newAnswersShowCmd(), newAnswersAddCmd(),
		newAnswersToggleCmd("disable", false), newAnswersToggleCmd("enable", true))
	return cmd
}

func newAnswersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			search, _ := cmd.Flags().GetString("search")

			q := url.Values{}
			if category != "" {
				q.Set("category", category)
			}
			if search != "" {
				q.Set("q", search)
			}
			path := "/answers"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), path)
			if err != nil {
				return err
			}

			var answers []answerView
			if err := decodeJSON(resp, &answers); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(answers) == 0 {
				fmt.Fprintln(w, "No answers found.")
				return nil
			}
			for _, a := range answers {
				fmt.Fprintf(w, "%s  %-12s  %s\n", colorize(colorCyan, shortID(a.ID)), a.Category, a.Title)
			}
			return nil
		},
	}
	cmd.Flags().String("category", "", "only answers in this category")
	cmd.Flags().String("search", "", "search title, content, category and keywords")
	return cmd
}

func newAnswersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single answer as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), "/answers/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), raw)
		},
	}
}

func newAnswersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an answer to the catalog",
		Long: `Add an answer to the catalog.

Examples:
  folioqa answers add --title "Cash Position" --content "You hold 4% in cash." \
    --category Allocation --keywords cash,liquidity --data '{"cashPercent":4}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			content, _ := cmd.Flags().GetString("content")
			category, _ := cmd.Flags().GetString("category")
			keywords, _ := cmd.Flags().GetStringSlice("keywords")
			answerType, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")

			if title == "" || content == "" {
				return fmt.Errorf("--title and --content are required")
			}

			req := map[string]any{
				"title":   title,
				"content": content,
			}
			if category != "" {
				req["category"] = category
			}
			if len(keywords) > 0 {
				req["keywords"] = keywords
			}
			if answerType != "" {
				req["answerType"] = answerType
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data must be valid JSON")
				}
				req["data"] = json.RawMessage(data)
			}

			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/answers", req)
			if err != nil {
				return err
			}

			var created answerView
			if err := decodeJSON(resp, &created); err != nil {
				return err
			}
			printSuccess("Added answer %q", created.Title)
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	cmd.Flags().String("title", "", "answer title (matched against questions)")
	cmd.Flags().String("content", "", "answer text")
	cmd.Flags().String("category", "", "category, e.g. Performance")
	cmd.Flags().StringSlice("keywords", nil, "comma-separated keywords")
	cmd.Flags().String("type", "", "answer type, e.g. performance")
	cmd.Flags().String("data", "", "structured data as a JSON object")
	return cmd
}

func newAnswersToggleCmd(use string, active bool) *cobra.Command {
	verb := "Disable"
	if active {
		verb = "Enable"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: verb + " an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.patch(cmd.Context(), "/answers/"+url.PathEscape(args[0]), map[string]any{"isActive": active})
			if err != nil {
				return err
			}
			var updated answerView
			if err := decodeJSON(resp, &updated); err != nil {
				return err
			}
			printSuccess("%sd answer %q", verb, updated.Title)
			return nil
		},
	}
}

// --- review ---

func newReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "List questions waiting for an advisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), "/questions/review")
			if err != nil {
				return err
			}

			var questions []struct {
				ID        string `json:"id"`
				Question  string `json:"question"`
				CreatedAt string `json:"createdAt"`
			}
			if err := decodeJSON(resp, &questions); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(questions) == 0 {
				fmt.Fprintln(w, "Review queue is empty.")
				return nil
			}
			printWarning("%d question(s) waiting for review", len(questions))
			for _, q := range questions {
				text := q.Question
				if len(text) > 80 {
					text = text[:80] + "..."
				}
				fmt.Fprintf(w, "%s  %s  %s\n", colorize(colorCyan, shortID(q.ID)), q.CreatedAt, text)
			}
			return nil
		},
	}
}

// --- config ---

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or update configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "# %s\n", config.FilePath())
			for _, k := range config.ShowAll(cfg) {
				fmt.Fprintf(w, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.SetKey(key, value); err != nil {
				return err
			}
			printSuccess("Set %s = %s", key, value)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func writeIndented(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
