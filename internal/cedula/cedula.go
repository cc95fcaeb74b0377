// Package cedula finds a Colombian national-ID number in recognized invoice text.
//
// The result is only a hint: it corrects a missing or implausibly short patient ID
// returned by the structured extractor and never replaces a plausible one.
package cedula

import (
	"regexp"
	"strings"
)

const (
	MinDigits = 6
	MaxDigits = 10
)

// patterns are tried in order; the first one that matches anywhere wins.
// A digit run longer than MaxDigits never matches because the run must be
// followed by a non-digit or the end of the text.
var patterns = []*regexp.Regexp{
	labelPattern(`paciente`),
	labelPattern(`identificaci[oó]n`),
	labelPattern(`c[eé]dula`),
	labelPattern(`id`),
}

func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + label + `\s*:?\s*([0-9]{6,10})(?:[^0-9]|$)`)
}

// Extract returns the digits of the first label-anchored ID found in text.
func Extract(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Plausible reports whether id already looks like a usable patient ID.
func Plausible(id string) bool {
	digits := 0
	for _, r := range id {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= MinDigits
}
