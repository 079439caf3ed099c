package types

import "testing"

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		r     RiskLevel
		level int
	}{
		{RiskLow, 0},
		{RiskMedium, 1},
		{RiskHigh, 2},
		{RiskLevel("critical"), -1},
	}

	for _, tt := range tests {
		if got := tt.r.Level(); got != tt.level {
			t.Errorf("%s.Level() = %d, want %d", tt.r, got, tt.level)
		}
	}
}

func TestRiskAtLeast(t *testing.T) {
	tests := []struct {
		r, other RiskLevel
		want     bool
	}{
		{RiskHigh, RiskLow, true},
		{RiskHigh, RiskHigh, true},
		{RiskMedium, RiskHigh, false},
		{RiskLow, RiskMedium, false},
	}

	for _, tt := range tests {
		if got := tt.r.AtLeast(tt.other); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.r, tt.other, got, tt.want)
		}
	}
}

func TestRiskMax(t *testing.T) {
	if got := RiskLow.Max(RiskHigh); got != RiskHigh {
		t.Errorf("expected high, got %s", got)
	}
	if got := RiskHigh.Max(RiskMedium); got != RiskHigh {
		t.Errorf("expected high, got %s", got)
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"low", true},
		{"medium", true},
		{"high", true},
		{"HIGH", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := ParseRiskLevel(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseRiskLevel(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
	}
}
