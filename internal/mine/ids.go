package mine

import "regexp"

var (
	mineCompoundRe = regexp.MustCompile(`^[CX][0-9a-f]{40}$`)
	keggCompoundRe = regexp.MustCompile(`^C[0-9]{5}$`)
	keggReactionRe = regexp.MustCompile(`^R[0-9]{5}$`)
	carbonRe       = regexp.MustCompile(`C[0-9]*`)
)

// IsMineCompoundID reports whether id has the shape of a MINE compound id:
// C or X followed by a 40 character hex digest.
func IsMineCompoundID(id string) bool {
	return mineCompoundRe.MatchString(id)
}

// IsKEGGCompoundID reports whether id is a KEGG compound id (C#####).
func IsKEGGCompoundID(id string) bool {
	return keggCompoundRe.MatchString(id)
}

// IsKEGGReactionID reports whether id is a KEGG reaction id (R#####).
func IsKEGGReactionID(id string) bool {
	return keggReactionRe.MatchString(id)
}

// IsCofactorID reports whether a MINE compound id uses the cofactor prefix.
func IsCofactorID(id string) bool {
	return len(id) > 0 && id[0] == 'X'
}

// CompoundAnalogue returns id with its first character replaced by C. A
// cofactor entry X… and its compound twin C… share the same digest.
func CompoundAnalogue(id string) string {
	if id == "" {
		return id
	}
	return "C" + id[1:]
}
