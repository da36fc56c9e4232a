// Package mine provides the compound and reaction record model shared by the
// MINE repository client, the KEGG REST client and the network builder.
//
// Records mirror the MINE database document shape. Fields the upstream source
// may omit are pointers or nil slices so that absence can be told apart from
// an empty value.
package mine

import (
	"encoding/json"
	"fmt"
)

// KEGG is the DB_links namespace holding KEGG identifiers.
const KEGG = "KEGG"

// Compound is a MINE or KEGG compound record.
type Compound struct {
	// ID is the repository identifier (MINE hash id or KEGG C##### id).
	ID string `json:"_id"`

	// Formula is the molecular formula, if known.
	Formula *string `json:"Formula,omitempty"`

	// DBLinks maps an external namespace to the ids this compound carries there.
	DBLinks map[string][]string `json:"DB_links,omitempty"`

	// Names are the common names of the compound.
	Names []string `json:"Names,omitempty"`

	// Reactions lists every reaction the compound takes part in. Only KEGG
	// records carry it; SortReactions turns it into ReactantIn/ProductOf.
	Reactions []string `json:"Reactions,omitempty"`

	// ReactantIn lists the reactions that consume the compound.
	ReactantIn []string `json:"Reactant_in,omitempty"`

	// ProductOf lists the reactions that produce the compound.
	ProductOf []string `json:"Product_of,omitempty"`
}

// KEGGIDs returns the compound's KEGG links.
func (c *Compound) KEGGIDs() []string {
	if c == nil || c.DBLinks == nil {
		return nil
	}
	return c.DBLinks[KEGG]
}

// HasFormula reports whether the record carries a formula.
func (c *Compound) HasFormula() bool {
	return c != nil && c.Formula != nil
}

// Connected reports whether the compound lists any reaction it takes part in.
func (c *Compound) Connected() bool {
	return c != nil && (len(c.ReactantIn) > 0 || len(c.ProductOf) > 0)
}

// Participant is one side entry of a reaction equation. On the wire it is a
// two element array: [coefficient, compound id].
type Participant struct {
	Coefficient int
	ID          string
}

// MarshalJSON implements json.Marshaler.
func (p Participant) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Coefficient, p.ID})
}

// UnmarshalJSON implements json.Unmarshaler. Entries that are too short keep
// an empty ID so that ReactionCompoundIDs can report the list as invalid
// instead of failing the whole record.
func (p *Participant) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding participant: %w", err)
	}
	*p = Participant{Coefficient: 1}
	if len(raw) < 2 {
		return nil
	}
	var coef float64
	if err := json.Unmarshal(raw[0], &coef); err == nil {
		p.Coefficient = int(coef)
	}
	if err := json.Unmarshal(raw[1], &p.ID); err != nil {
		return fmt.Errorf("decoding participant id: %w", err)
	}
	return nil
}

// ReactantPair is a KEGG RPAIR entry: the "A_B" compound pair and its role tag
// (main, cofac, leave, trans, ligase).
type ReactantPair struct {
	Pair string
	Tag  string
}

// MarshalJSON implements json.Marshaler.
func (rp ReactantPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{rp.Pair, rp.Tag})
}

// UnmarshalJSON implements json.Unmarshaler.
func (rp *ReactantPair) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding reactant pair: %w", err)
	}
	*rp = ReactantPair{}
	if len(raw) > 0 {
		rp.Pair = raw[0]
	}
	if len(raw) > 1 {
		rp.Tag = raw[1]
	}
	return nil
}

// Reaction is a MINE or KEGG reaction record.
type Reaction struct {
	// ID is the repository identifier (MINE hash id or KEGG R##### id).
	ID string `json:"_id"`

	// Operators are enzyme classification numbers, ["NA"] when unknown.
	Operators []string `json:"Operators,omitempty"`

	// Reactants is the left-hand side of the equation. Nil means the record
	// did not list reactants at all.
	Reactants []Participant `json:"Reactants,omitempty"`

	// Products is the right-hand side of the equation.
	Products []Participant `json:"Products,omitempty"`

	// RPair maps a KEGG reactant pair id to its pair.
	RPair map[string]ReactantPair `json:"RPair,omitempty"`
}

// ReactantIDs returns the compound ids on the reactant side.
func (r *Reaction) ReactantIDs() []string {
	return participantIDs(r.Reactants)
}

// ProductIDs returns the compound ids on the product side.
func (r *Reaction) ProductIDs() []string {
	return participantIDs(r.Products)
}

func participantIDs(ps []Participant) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}

// String returns a pointer to s. Handy for building records with a formula.
func String(s string) *string {
	return &s
}
