// Package violation decides whether a list of analysis findings describes a
// real PPE violation or just placeholder / all clear text.
package violation

import "strings"

// AllClear is stored as the violation type when nothing was found
const AllClear = "No violations detected - All Clear"

// Substrings (lowercase) that mark a finding as not a violation
var placeholderPatterns = []string{
	"all clear",
	"all ppe requirements met",
	"all ppe",
	"no violations",
	"no violation",
	"manual review",
	"manual inspection",
	"image uploaded",
	"all safety protocols followed",
}

// Decision is the outcome of Classify
type Decision struct {
	HasViolation  bool
	ViolationType string
}

// IsPlaceholder reports whether s contains any placeholder pattern
func IsPlaceholder(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsViolationText reports whether s is a real violation description
func IsViolationText(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return !IsPlaceholder(s)
}

// Classify turns raw findings into the stored violation type.
// A single real finding is enough; the stored text then keeps every entry in order.
func Classify(findings []string) Decision {
	for _, f := range findings {
		if IsViolationText(f) {
			return Decision{
				HasViolation:  true,
				ViolationType: strings.Join(findings, ", "),
			}
		}
	}
	return Decision{ViolationType: AllClear}
}

// FromRow classifies a persisted row. An explicit flag wins; rows written
// before the flag existed fall back to the text.
func FromRow(flag *bool, violationType string) bool {
	if flag != nil {
		return *flag
	}
	return IsViolationText(violationType)
}
