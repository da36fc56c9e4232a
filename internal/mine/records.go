package mine

// Records is a read-only reference map from record id to its compound or
// reaction. The network keeps one to check compound/reaction connectivity.
type Records struct {
	Compounds map[string]*Compound `json:"compounds"`
	Reactions map[string]*Reaction `json:"reactions"`
}

// NewRecords returns a Records view over the given maps. The maps are
// copied, the records themselves are shared.
func NewRecords(compounds map[string]*Compound, reactions map[string]*Reaction) *Records {
	r := &Records{
		Compounds: make(map[string]*Compound, len(compounds)),
		Reactions: make(map[string]*Reaction, len(reactions)),
	}
	for id, c := range compounds {
		r.Compounds[id] = c
	}
	for id, rxn := range reactions {
		r.Reactions[id] = rxn
	}
	return r
}

// Compound returns the compound record with the given id, or nil.
func (r *Records) Compound(id string) *Compound {
	if r == nil {
		return nil
	}
	return r.Compounds[id]
}

// Reaction returns the reaction record with the given id, or nil.
func (r *Records) Reaction(id string) *Reaction {
	if r == nil {
		return nil
	}
	return r.Reactions[id]
}

// Len returns the number of records held.
func (r *Records) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Compounds) + len(r.Reactions)
}
