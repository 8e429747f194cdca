// Package classify routes questions that matched no catalog answer.
package classify

import "strings"

// Type is the fallback family a question falls into.
type Type string

const (
	Personal        Type = "personal"
	Market          Type = "market"
	FinancialAdvice Type = "financial_advice"
	Portfolio       Type = "portfolio"
)

// Title is the heading shown on a fallback card for t.
func (t Type) Title() string {
	switch t {
	case Personal:
		return "Account Information"
	case Market:
		return "Market Data"
	default:
		return "Portfolio Analysis"
	}
}

// NeedsReview reports whether questions of this type go to the advisor queue.
func (t Type) NeedsReview() bool {
	return t == FinancialAdvice
}

// Result is the outcome of Classify.
type Result struct {
	Type       Type   `json:"type"`
	Message    string `json:"message"`
	ActionText string `json:"actionText,omitempty"`
}

type rule struct {
	result   Result
	keywords []string
}

// rules are checked in order; the first family with any keyword hit wins.
var rules = []rule{
	{
		result: Result{
			Type:       Personal,
			Message:    "I can help with portfolio analysis, but I don't have access to personal account information. You can find your account details in the main dashboard or contact your advisor directly.",
			ActionText: "View Account Details",
		},
		keywords: []string{
			"name", "address", "phone", "email", "advisor", "contact",
			"who am i", "my information", "account details",
		},
	},
	{
		result: Result{
			Type:       Market,
			Message:    "I specialize in your portfolio analysis. For real-time market data or economic forecasts, I'd recommend checking your trading platform or financial news sources.",
			ActionText: "Open Market Data",
		},
		keywords: []string{
			"stock price", "market news", "interest rates", "fed", "inflation",
			"earnings", "when will", "what will happen",
		},
	},
	{
		result: Result{
			Type:       FinancialAdvice,
			Message:    "This is a great question for personalized advice. I've added it to your advisor's review queue for detailed analysis. You should receive a response within 24 hours.",
			ActionText: "Track Review Status",
		},
		keywords: []string{
			"should i", "what should", "recommend", "advice", "strategy",
			"buy", "sell", "rebalance", "allocate",
		},
	},
}

var defaultResult = Result{
	Type:       Portfolio,
	Message:    "I don't have specific data for this portfolio question yet. I've added it to our development queue to enhance my capabilities. Meanwhile, your advisor can provide detailed insights.",
	ActionText: "Contact Advisor",
}

// Classify assigns question to a fallback family by case-insensitive
// substring match. Questions hitting no family are Portfolio.
func Classify(question string) Result {
	q := strings.ToLower(question)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(q, kw) {
				return r.result
			}
		}
	}
	return defaultResult
}
