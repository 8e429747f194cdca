package classify

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     Type
	}{
		{"What's my home address?", Personal},
		{"Who am I?", Personal},
		{"Show my ACCOUNT DETAILS", Personal},
		{"What is the stock price of Apple?", Market},
		{"When will rates drop?", Market},
		{"Should I sell my tech stocks?", FinancialAdvice},
		{"Can you recommend a fund?", FinancialAdvice},
		{"Time to rebalance?", FinancialAdvice},
		{"How many lots do I hold?", Portfolio},
		{"", Portfolio},
	}
	for _, tt := range tests {
		if got := Classify(tt.question); got.Type != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.question, got.Type, tt.want)
		}
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// "advisor" is personal, "recommend" is advice; personal is checked first.
	got := Classify("Can my advisor recommend something?")
	if got.Type != Personal {
		t.Errorf("Type = %q, want personal", got.Type)
	}

	// "fed" (market) beats "should i" (advice).
	got = Classify("Should I worry about the Fed?")
	if got.Type != Market {
		t.Errorf("Type = %q, want market", got.Type)
	}
}

func TestClassify_Messages(t *testing.T) {
	personal := Classify("what's my email")
	if personal.ActionText != "View Account Details" {
		t.Errorf("personal ActionText = %q", personal.ActionText)
	}

	advice := Classify("should i buy more?")
	if !strings.Contains(advice.Message, "review queue") {
		t.Errorf("advice Message = %q, want mention of review queue", advice.Message)
	}
	if advice.ActionText != "Track Review Status" {
		t.Errorf("advice ActionText = %q", advice.ActionText)
	}

	portfolio := Classify("anything else")
	if portfolio.ActionText != "Contact Advisor" {
		t.Errorf("portfolio ActionText = %q", portfolio.ActionText)
	}
}

func TestType_Title(t *testing.T) {
	tests := map[Type]string{
		Personal:        "Account Information",
		Market:          "Market Data",
		Portfolio:       "Portfolio Analysis",
		FinancialAdvice: "Portfolio Analysis",
	}
	for typ, want := range tests {
		if got := typ.Title(); got != want {
			t.Errorf("%s.Title() = %q, want %q", typ, got, want)
		}
	}
}

func TestType_NeedsReview(t *testing.T) {
	for _, typ := range []Type{Personal, Market, Portfolio} {
		if typ.NeedsReview() {
			t.Errorf("%s.NeedsReview() = true", typ)
		}
	}
	if !FinancialAdvice.NeedsReview() {
		t.Error("financial_advice should need review")
	}
}
