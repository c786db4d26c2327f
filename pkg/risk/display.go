package risk

import "fmt"

// DisplayType classifies the factor for end users.
type DisplayType string

const (
	DisplayBonus   DisplayType = "BONUS"
	DisplayMalus   DisplayType = "MALUS"
	DisplayNeutral DisplayType = "NEUTRAL"
)

// Display is the user-facing rendering of the factor. The raw factor is never
// shown to end users, only the percentage plus contextual guidance.
type Display struct {
	Type       DisplayType
	Percentage float64
	Message    string
	Tips       []string
}

// Improvement tip thresholds, matching the celebratory criteria exactly.
const (
	tipRatingFloor      = 4.0
	tipCancellationCeil = 0.1
	tipExperienceFloor  = 10
	topRating           = 4.8
	topCancellationCeil = 0.05
	topExperienceFloor  = 20
)

// FormatDisplay translates the signed factor into display classification.
// The bands here drive display only, never the tier.
func FormatDisplay(factor float64) Display {
	percentage := factor * 100
	if percentage < 0 {
		percentage = -percentage
	}

	switch {
	case factor < -0.05:
		return Display{
			Type:       DisplayBonus,
			Percentage: percentage,
			Message:    fmt.Sprintf("You have a %.0f%% discount!", percentage),
			Tips: []string{
				"Keep up your excellent reputation to keep earning discounts.",
			},
		}
	case factor < 0:
		return Display{
			Type:       DisplayBonus,
			Percentage: percentage,
			Message:    fmt.Sprintf("You have a %.0f%% discount", percentage),
			Tips: []string{
				"Complete more rentals and keep a good rating to grow your discount.",
			},
		}
	case factor == 0:
		return Display{
			Type:       DisplayNeutral,
			Percentage: 0,
			Message:    "Standard pricing, no adjustments",
			Tips: []string{
				"Complete rentals and earn good ratings to receive discounts.",
				"Avoid cancellations to stay clear of surcharges.",
			},
		}
	case factor <= 0.05:
		return Display{
			Type:       DisplayMalus,
			Percentage: percentage,
			Message:    fmt.Sprintf("You have a %.0f%% surcharge", percentage),
			Tips: []string{
				"Improve your rating by completing successful rentals.",
				"Avoid cancellations to reduce the surcharge.",
			},
		}
	default:
		return Display{
			Type:       DisplayMalus,
			Percentage: percentage,
			Message:    fmt.Sprintf("You have a %.0f%% surcharge", percentage),
			Tips: []string{
				"Your history needs to improve to reduce the surcharge.",
				"Complete incident-free rentals and earn better ratings.",
				"Verify your identity to reduce the surcharge.",
			},
		}
	}
}

// ImprovementTips derives personalized guidance from a metrics snapshot. Tips
// are ordered rating, cancellations, experience, verification; the celebratory
// tip appears only when every top threshold holds at once. A zero rating is
// no data, not a bad rating, so it never triggers the rating tip.
func ImprovementTips(metrics Metrics) []string {
	tips := []string{}

	if metrics.AverageRating < tipRatingFloor && metrics.AverageRating > 0 {
		tips = append(tips, fmt.Sprintf(
			"📊 Improve your rating: you are currently at %.1f/5.0. Focus on communication and punctuality.",
			metrics.AverageRating,
		))
	}
	if metrics.CancellationRate > tipCancellationCeil {
		tips = append(tips, fmt.Sprintf(
			"🚫 Reduce cancellations: your current rate is %.0f%%. Avoid cancelling confirmed bookings.",
			metrics.CancellationRate*100,
		))
	}
	if metrics.CompletedRentals < tipExperienceFloor {
		tips = append(tips, fmt.Sprintf(
			"🚗 Build experience: complete %d more rentals to unlock better discounts.",
			tipExperienceFloor-metrics.CompletedRentals,
		))
	}
	if !metrics.IsVerified {
		tips = append(tips, "✅ Verify your identity: verified users receive up to 3% extra discount.")
	}

	if metrics.AverageRating >= topRating &&
		metrics.CancellationRate < topCancellationCeil &&
		metrics.IsVerified &&
		metrics.CompletedRentals >= topExperienceFloor {
		tips = append(tips, "🏆 Excellent! You have the maximum possible discount. Keep up this level of service.")
	}

	return tips
}
