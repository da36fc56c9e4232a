package mine

import "go.uber.org/zap"

// UnknownReaction stands in for the id of a reaction record that has none.
const UnknownReaction = "UnknownReaction"

// ReactionCompoundIDs returns the reactant ids followed by the product ids of
// rxn. A side that is missing or holds a malformed entry contributes nothing
// and is reported on log.
func ReactionCompoundIDs(rxn *Reaction, log *zap.Logger) []string {
	if log == nil {
		log = zap.NewNop()
	}
	if rxn == nil {
		log.Warn("not a valid reaction")
		return nil
	}

	id := rxn.ID
	if id == "" {
		log.Warn("reaction has no id")
		id = UnknownReaction
	}

	var ids []string
	if rxn.Reactants == nil {
		log.Warn("reaction does not list its reactants", zap.String("reaction", id))
	} else if side, ok := sideIDs(rxn.Reactants); ok {
		ids = append(ids, side...)
	} else {
		log.Warn("reactant list is not valid", zap.String("reaction", id))
	}

	if rxn.Products == nil {
		log.Warn("reaction does not list its products", zap.String("reaction", id))
	} else if side, ok := sideIDs(rxn.Products); ok {
		ids = append(ids, side...)
	} else {
		log.Warn("product list is not valid", zap.String("reaction", id))
	}

	return ids
}

func sideIDs(ps []Participant) ([]string, bool) {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.ID == "" {
			return nil, false
		}
		ids = append(ids, p.ID)
	}
	return ids, true
}

// CompoundReactionIDs returns the reactions consuming the compound followed
// by the reactions producing it.
func CompoundReactionIDs(c *Compound) []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.ReactantIn)+len(c.ProductOf))
	ids = append(ids, c.ReactantIn...)
	ids = append(ids, c.ProductOf...)
	return ids
}
