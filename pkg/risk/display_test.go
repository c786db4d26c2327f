package risk

import (
	"strings"
	"testing"
)

func TestFormatDisplayBands(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name     string
		factor   float64
		wantType DisplayType
	}{
		{"large bonus", -0.08, DisplayBonus},
		{"small bonus", -0.03, DisplayBonus},
		{"boundary small bonus", -0.05, DisplayBonus},
		{"neutral", 0, DisplayNeutral},
		{"small malus", 0.05, DisplayMalus},
		{"large malus", 0.08, DisplayMalus},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			display := FormatDisplay(testCase.factor)
			if display.Type != testCase.wantType {
				test.Fatalf("FormatDisplay(%v).Type = %s, want %s", testCase.factor, display.Type, testCase.wantType)
			}
			if display.Percentage < 0 {
				test.Fatalf("percentage must be absolute, got %v", display.Percentage)
			}
			if len(display.Tips) == 0 {
				test.Fatalf("every band carries at least one tip")
			}
		})
	}
}

func TestFactorNeverShownRaw(test *testing.T) {
	test.Parallel()
	display := FormatDisplay(-0.08)
	if display.Percentage != 8 {
		test.Fatalf("expected percentage 8, got %v", display.Percentage)
	}
	if !strings.Contains(display.Message, "8%") {
		test.Fatalf("message should carry the percentage: %q", display.Message)
	}
}

func TestImprovementTipsOrderingAndVerificationLast(test *testing.T) {
	test.Parallel()
	metrics := Metrics{
		AverageRating:    3.5,
		CancellationRate: 0.2,
		CompletedRentals: 3,
		IsVerified:       false,
	}
	tips := ImprovementTips(metrics)
	if len(tips) != 4 {
		test.Fatalf("expected 4 tips, got %d: %v", len(tips), tips)
	}
	if !strings.Contains(tips[len(tips)-1], "Verify your identity") {
		test.Fatalf("verification tip must come last among improvement tips: %v", tips)
	}
	for _, tip := range tips {
		if strings.Contains(tip, "🏆") {
			test.Fatalf("celebratory tip must not appear for a struggling user: %v", tips)
		}
	}
}

func TestImprovementTipsCelebratory(test *testing.T) {
	test.Parallel()
	metrics := Metrics{
		AverageRating:    4.9,
		CancellationRate: 0.0,
		CompletedRentals: 25,
		IsVerified:       true,
	}
	tips := ImprovementTips(metrics)
	if len(tips) != 1 {
		test.Fatalf("expected only the celebratory tip, got %v", tips)
	}
	if !strings.Contains(tips[0], "🏆") {
		test.Fatalf("expected celebratory tip, got %v", tips)
	}
}

func TestImprovementTipsIgnoreMissingRating(test *testing.T) {
	test.Parallel()
	tips := ImprovementTips(Metrics{AverageRating: 0, CompletedRentals: 25, IsVerified: true})
	for _, tip := range tips {
		if strings.Contains(tip, "Improve your rating") {
			test.Fatalf("zero rating must not count as a bad rating: %v", tips)
		}
	}
}

func TestCelebratoryRequiresAllThresholds(test *testing.T) {
	test.Parallel()
	almost := Metrics{
		AverageRating:    4.9,
		CancellationRate: 0.06, // just above the top threshold
		CompletedRentals: 25,
		IsVerified:       true,
	}
	for _, tip := range ImprovementTips(almost) {
		if strings.Contains(tip, "🏆") {
			test.Fatalf("celebratory tip requires every threshold simultaneously")
		}
	}
}
