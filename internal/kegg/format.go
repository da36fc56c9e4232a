package kegg

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/mine"
)

// Equation tokens.
const (
	equationArrow = "<=>"
	equationPlus  = "+"
)

// FormatReaction turns a KEGG reaction entry into a reaction record.
//
// Operators come from ENZYME, or are ["NA"] for reactions without one. The
// EQUATION is read left to right: a number sets the coefficient of the next
// compound, "+" and "<=>" reset it to 1, and "<=>" switches to the product
// side. RPAIR tokens are read in (id, pair, tag) triples, skipping the
// bracketed annotations between them.
func FormatReaction(text string, log *zap.Logger) (*mine.Reaction, error) {
	if log == nil {
		log = zap.NewNop()
	}
	record := ParseRecord(text, log)

	entry := record["ENTRY"]
	if len(entry) == 0 {
		return nil, ErrMissingEntry
	}
	id := entry[0]
	if !mine.IsKEGGReactionID(id) {
		return nil, fmt.Errorf("reaction entry %q: %w", id, ErrInvalidID)
	}

	equation, ok := record["EQUATION"]
	if !ok {
		return nil, fmt.Errorf("reaction %s: %w", id, ErrMissingEquation)
	}

	rxn := &mine.Reaction{
		ID:        id,
		Operators: record["ENZYME"],
		Reactants: []mine.Participant{},
		Products:  []mine.Participant{},
		RPair:     map[string]mine.ReactantPair{},
	}
	if len(rxn.Operators) == 0 {
		rxn.Operators = []string{"NA"}
	}

	products := false
	coef := 1
	for _, token := range equation {
		switch {
		case token == equationArrow:
			products = true
			coef = 1
		case token == equationPlus:
			coef = 1
		case isCoefficient(token):
			coef, _ = strconv.Atoi(token)
		default:
			p := mine.Participant{Coefficient: coef, ID: token}
			if products {
				rxn.Products = append(rxn.Products, p)
			} else {
				rxn.Reactants = append(rxn.Reactants, p)
			}
			coef = 1
		}
	}

	if pairs, ok := record["RPAIR"]; ok {
		var triple []string
		for _, token := range pairs {
			if strings.HasPrefix(token, "[") {
				continue
			}
			triple = append(triple, token)
			if len(triple) == 3 {
				rxn.RPair[triple[0]] = mine.ReactantPair{Pair: triple[1], Tag: triple[2]}
				triple = nil
			}
		}
		if len(triple) > 0 {
			log.Warn("unexpected format of reactant pair list",
				zap.String("reaction", id), zap.Strings("rpair", pairs))
		}
	}

	return rxn, nil
}

func isCoefficient(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatCompound turns a KEGG compound entry into a compound record. The
// compound links to itself in the KEGG namespace. NAME tokens are joined
// into names closed by a trailing ";", the first FORMULA token is the
// formula and REACTION lists every reaction the compound takes part in.
func FormatCompound(text string, log *zap.Logger) (*mine.Compound, error) {
	record := ParseRecord(text, log)

	entry := record["ENTRY"]
	if len(entry) == 0 {
		return nil, ErrMissingEntry
	}
	id := entry[0]
	if !mine.IsKEGGCompoundID(id) {
		return nil, fmt.Errorf("compound entry %q: %w", id, ErrInvalidID)
	}

	comp := &mine.Compound{
		ID:      id,
		DBLinks: map[string][]string{mine.KEGG: {id}},
	}

	if tokens, ok := record["NAME"]; ok {
		comp.Names = []string{}
		var name []string
		for _, token := range tokens {
			if strings.HasSuffix(token, ";") {
				name = append(name, strings.TrimRight(token, ";"))
				comp.Names = append(comp.Names, strings.Join(name, " "))
				name = nil
				continue
			}
			name = append(name, token)
		}
		if len(name) > 0 {
			comp.Names = append(comp.Names, strings.Join(name, " "))
		}
	}

	if formula := record["FORMULA"]; len(formula) > 0 {
		comp.Formula = mine.String(formula[0])
	}
	if rxns, ok := record["REACTION"]; ok {
		comp.Reactions = rxns
	}

	return comp, nil
}
