package domain

import "strings"

// NigerianStates is the closed set of accepted location answers: the 36
// states plus the federal capital. Matching is exact, case-insensitive.
var NigerianStates = []string{
	"Abia", "Abuja", "Adamawa", "Akwa Ibom", "Anambra", "Bauchi",
	"Bayelsa", "Benue", "Borno", "Cross River", "Delta", "Ebonyi",
	"Edo", "Ekiti", "Enugu", "Gombe", "Imo", "Jigawa", "Kaduna",
	"Kano", "Katsina", "Kebbi", "Kogi", "Kwara", "Lagos", "Nasarawa",
	"Niger", "Ogun", "Ondo", "Osun", "Oyo", "Plateau", "Rivers",
	"Sokoto", "Taraba", "Yobe", "Zamfara",
}

// CanonicalState matches input against the state vocabulary and returns
// the properly cased entry. No fuzzy or partial matching.
func CanonicalState(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	for _, state := range NigerianStates {
		if strings.EqualFold(state, trimmed) {
			return state, true
		}
	}
	return "", false
}
