package mine

import "strconv"

// CarbonCount returns the number of carbon atoms in a formula, taken from the
// first C token. A bare C counts as one; a formula without C has none.
//
// Only the first C token is inspected, so "HCl" counts one carbon.
func CarbonCount(formula string) int {
	match := carbonRe.FindString(formula)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match[1:])
	if err != nil {
		return 1
	}
	return n
}

// ExceedsCarbon reports whether the compound has more than limit carbons.
// Compounds without a formula never exceed the limit.
func (c *Compound) ExceedsCarbon(limit int) bool {
	if !c.HasFormula() {
		return false
	}
	return CarbonCount(*c.Formula) > limit
}

// Inorganic reports whether the compound cannot be shown to hold carbon:
// either its formula has no C or it has no formula at all.
func (c *Compound) Inorganic() bool {
	return !c.ExceedsCarbon(0)
}
