package domain

import "testing"

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in   string
		want Intent
	}{
		{"portfolio", IntentPortfolio},
		{" Market ", IntentMarket},
		{"SECURITY", IntentSecurity},
		{"education", IntentEducation},
		{"general", IntentGeneral},
		{"", IntentGeneral},
		{"market or security", IntentGeneral},
		{"weather", IntentGeneral},
	}
	for _, tt := range tests {
		if got := ParseIntent(tt.in); got != tt.want {
			t.Errorf("ParseIntent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInboundMessageValidate(t *testing.T) {
	if err := (InboundMessage{Text: "   \n\t"}).Validate(); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage for blank text, got %v", err)
	}
	if err := (InboundMessage{Text: "price of ETH"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	addr := "0xAbCdEf0123456789abcdef0123456789ABCDEF01"
	if got := NormalizeAddress(addr); got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("NormalizeAddress = %q", got)
	}
	for _, bad := range []string{"", "0x123", "abcdef0123456789abcdef0123456789abcdef0101", "0xZZcdef0123456789abcdef0123456789abcdef01"} {
		if got := NormalizeAddress(bad); got != "" {
			t.Errorf("NormalizeAddress(%q) = %q, want empty", bad, got)
		}
	}
}

func TestAIResponseCloneIsIndependent(t *testing.T) {
	orig := &AIResponse{
		Content:  "hello",
		Sources:  []string{"market"},
		Metadata: ResponseMetadata{Attempts: []ProviderAttempt{{Provider: "openai"}}},
	}
	cp := orig.Clone()
	cp.Sources[0] = "changed"
	cp.Metadata.Attempts[0].Provider = "changed"
	if orig.Sources[0] != "market" || orig.Metadata.Attempts[0].Provider != "openai" {
		t.Fatal("clone shares slices with original")
	}
}

func TestContextBundleHasIdentityData(t *testing.T) {
	b := NewContextBundle()
	b.Data[ContextMarketOverview] = MarketOverview{}
	if b.HasIdentityData() {
		t.Fatal("market-only bundle reported identity data")
	}
	b.Data[ContextPortfolio] = PortfolioSnapshot{}
	if !b.HasIdentityData() {
		t.Fatal("portfolio bundle did not report identity data")
	}
}
