package ambervalley

import (
	"strings"

	"bin-dates/models"
)

// ResolveSelector narrows a property list to the single address that starts
// with selector, ignoring case. It never picks between several candidates:
// more than one hit is reported as MatchAmbiguous so the user can type more.
func ResolveSelector(properties []models.Property, selector string) models.Match {
	want := strings.ToLower(selector)

	var matches []models.Property
	for _, p := range properties {
		if strings.HasPrefix(strings.ToLower(p.AddressComma), want) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return models.Match{Kind: models.MatchNone}
	case 1:
		return models.Match{Kind: models.MatchUnique, UPRN: matches[0].UPRN, Candidates: matches}
	default:
		return models.Match{Kind: models.MatchAmbiguous, Candidates: matches}
	}
}
