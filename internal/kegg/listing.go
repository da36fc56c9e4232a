package kegg

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/mine"
)

// Compounds whose reactions are never listed: CO2, CoA and ACP.
var unlistedCompounds = map[string]bool{
	"C00011": true,
	"C00010": true,
	"C00229": true,
}

// atpPair is the reactant pair id of the ATP/ADP exchange.
const atpPair = "00003"

// AllowReactionListing reports whether rxn may be listed among comp's
// reactions. It may not if comp is inorganic, is CO2, CoA or ACP, or takes
// part in a cofactor reactant pair or the ATP/ADP pair of rxn.
func AllowReactionListing(comp *mine.Compound, rxn *mine.Reaction) bool {
	if comp == nil || rxn == nil {
		return false
	}
	if comp.Inorganic() || unlistedCompounds[comp.ID] {
		return false
	}
	for pid, rp := range rxn.RPair {
		if !strings.Contains(rp.Pair, comp.ID) {
			continue
		}
		if rp.Tag == "cofac" || pid == "RP"+atpPair || pid == atpPair {
			return false
		}
	}
	return true
}

// SortReactions fills Reactant_in and Product_of of every compound from its
// Reactions list, keeping only reactions present in reactions that pass
// AllowReactionListing. The compounds are modified in place.
func SortReactions(compounds map[string]*mine.Compound, reactions map[string]*mine.Reaction, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	ids := make([]string, 0, len(compounds))
	for id := range compounds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		comp := compounds[id]
		if comp == nil {
			continue
		}
		for _, rid := range comp.Reactions {
			rxn, ok := reactions[rid]
			if !ok || rxn == nil {
				log.Debug("KEGG compound lists a missing reaction",
					zap.String("compound", id), zap.String("reaction", rid))
				continue
			}
			if !AllowReactionListing(comp, rxn) {
				continue
			}
			if contains(rxn.ReactantIDs(), id) {
				comp.ReactantIn = append(comp.ReactantIn, rxn.ID)
			}
			if contains(rxn.ProductIDs(), id) {
				comp.ProductOf = append(comp.ProductOf, rxn.ID)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
