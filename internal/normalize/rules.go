package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"facturas/pkg/models"
)

const (
	// EligibilityKeyword selects the service lines that reach the ledger.
	EligibilityKeyword = "doppler"

	// DiscountFactor is applied to every ledger cost to produce the final cost.
	DiscountFactor = 0.5

	// UnidentifiedEntity is written when neither the EPS nor the plan is known.
	UnidentifiedEntity = "EPS no identificada"

	// MaxIDDigits bounds a sanitized patient ID.
	MaxIDDigits = 10
)

var (
	nonDigits       = regexp.MustCompile(`[^0-9]`)
	ultrasoundWord  = regexp.MustCompile(`(?i)ecograf[ií]a`)
	unknownEntities = map[string]bool{"": true, "unknown": true}
)

// ResolveEntity returns the entity, falling back to the plan and then to UnidentifiedEntity.
func ResolveEntity(entity, plan string) string {
	if !unknownEntities[strings.ToLower(strings.TrimSpace(entity))] {
		return entity
	}
	if strings.TrimSpace(plan) != "" {
		return plan
	}
	return UnidentifiedEntity
}

// SanitizeID keeps the first MaxIDDigits digits of id.
func SanitizeID(id string) string {
	digits := nonDigits.ReplaceAllString(id, "")
	if len(digits) > MaxIDDigits {
		digits = digits[:MaxIDDigits]
	}
	return digits
}

// Eligible reports whether a service description mentions the eligibility keyword.
func Eligible(description string) bool {
	return strings.Contains(strings.ToLower(description), EligibilityKeyword)
}

// FilterServices keeps eligible services in input order.
func FilterServices(services []models.ServiceLine) []models.ServiceLine {
	kept := make([]models.ServiceLine, 0, len(services))
	for _, s := range services {
		if Eligible(s.Description) {
			kept = append(kept, s)
		}
	}
	return kept
}

// DenoiseValue turns a model-produced amount into whole pesos.
//
// Every non-digit is dropped. A digit string longer than two characters that ends
// in "00" is taken to carry spurious centavos and is divided by 100. This misfires
// on genuinely round amounts; the second return value reports whether the rule fired.
func DenoiseValue(raw string) (int64, bool) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return 0, false
	}

	stripped := false
	if len(digits) > 2 && strings.HasSuffix(digits, "00") {
		digits = digits[:len(digits)-2]
		stripped = true
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		// Only reachable for runs longer than int64 can hold.
		return 0, stripped
	}
	return value, stripped
}

// CleanDescription removes the word ECOGRAFIA and collapses whitespace.
func CleanDescription(description string) string {
	return strings.Join(strings.Fields(ultrasoundWord.ReplaceAllString(description, " ")), " ")
}

// FinalCost applies the fixed discount.
func FinalCost(cost int64) float64 {
	return float64(cost) * DiscountFactor
}
