package models

// MatchKind discriminates the outcome of narrowing a property list with a selector.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchUnique
	MatchAmbiguous
)

func (k MatchKind) String() string {
	switch k {
	case MatchNone:
		return "none"
	case MatchUnique:
		return "unique"
	case MatchAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Match is the result of resolving a selector. UPRN is only set for
// MatchUnique; Candidates holds every matching property for MatchAmbiguous.
type Match struct {
	Kind       MatchKind
	UPRN       UPRN
	Candidates []Property
}
