package risk

import "testing"

func TestTierBoundaries(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name       string
		isVerified bool
		factor     float64
		want       Tier
	}{
		{"verified at elite boundary", true, -0.05, TierElite},
		{"verified below elite boundary", true, -0.08, TierElite},
		{"verified just above elite boundary", true, -0.049, TierTrusted},
		{"verified at zero", true, 0, TierTrusted},
		{"verified with surcharge", true, 0.02, TierStandard},
		{"unverified with deep bonus", false, -0.10, TierStandard},
		{"unverified neutral", false, 0, TierStandard},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got := ResolveTier(testCase.isVerified, testCase.factor)
			if got != testCase.want {
				test.Fatalf("ResolveTier(%v, %v) = %s, want %s", testCase.isVerified, testCase.factor, got, testCase.want)
			}
		})
	}
}

func TestTierMonotonicInFactor(test *testing.T) {
	test.Parallel()
	rank := map[Tier]int{TierStandard: 0, TierTrusted: 1, TierElite: 2}
	for _, verified := range []bool{true, false} {
		previous := rank[ResolveTier(verified, -0.15)]
		for factor := -0.15; factor <= 0.15; factor += 0.005 {
			current := rank[ResolveTier(verified, factor)]
			if current > previous {
				test.Fatalf("tier rank rose from %d to %d at factor %v (verified=%v)", previous, current, factor, verified)
			}
			previous = current
		}
	}
}

func TestScoreExcellentUserReachesElite(test *testing.T) {
	test.Parallel()
	metrics := Metrics{
		AverageRating:    4.9,
		CancellationRate: 0.0,
		CompletedRentals: 25,
		IsVerified:       true,
	}
	factor := Score(metrics)
	if factor > -0.05 {
		test.Fatalf("expected factor <= -0.05, got %v", factor)
	}
	if tier := ResolveTier(metrics.IsVerified, factor); tier != TierElite {
		test.Fatalf("expected elite, got %s", tier)
	}
	if discount := DepositDiscount(ResolveTier(metrics.IsVerified, factor)); discount != 1.0 {
		test.Fatalf("expected full deposit waiver, got %v", discount)
	}
}

func TestScoreNewUserIsNeutral(test *testing.T) {
	test.Parallel()
	factor := Score(Metrics{})
	if factor != 0 {
		test.Fatalf("expected neutral factor for empty metrics, got %v", factor)
	}
}

func TestScorePenalizesCancellations(test *testing.T) {
	test.Parallel()
	clean := Score(Metrics{AverageRating: 4.6, CompletedRentals: 12})
	flaky := Score(Metrics{AverageRating: 4.6, CompletedRentals: 12, CancellationRate: 0.2})
	if flaky <= clean {
		test.Fatalf("expected cancellations to raise the factor: clean=%v flaky=%v", clean, flaky)
	}
}

func TestScoreClampsAtBounds(test *testing.T) {
	test.Parallel()
	worst := Score(Metrics{AverageRating: 1.0, CancellationRate: 0.9})
	if worst > 0.15 {
		test.Fatalf("factor above ceiling: %v", worst)
	}
	best := Score(Metrics{AverageRating: 5.0, CompletedRentals: 100, IsVerified: true})
	if best < -0.10 {
		test.Fatalf("factor below floor: %v", best)
	}
}

func TestVerifiedBoundaryIsExact(test *testing.T) {
	test.Parallel()
	// rating-great plus verified lands exactly on the elite boundary.
	metrics := Metrics{AverageRating: 4.6, IsVerified: true}
	factor := Score(metrics)
	if factor != -0.05 {
		test.Fatalf("expected exactly -0.05, got %v", factor)
	}
	if tier := ResolveTier(true, factor); tier != TierElite {
		test.Fatalf("boundary factor must resolve elite, got %s", tier)
	}
}
