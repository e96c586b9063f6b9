package queryir

// Restriction limits which transcripts a caller may see. Given the column
// holding a transcript's ag_id it returns a boolean condition over it.
// A nil Restriction allows everything.
type Restriction func(agID Expr) Expr

// Apply returns the condition for agID, or Bool{true} for a nil restriction.
func (r Restriction) Apply(agID Expr) Expr {
	if r == nil {
		return Bool{Value: true}
	}
	if e := r(agID); e != nil {
		return e
	}
	return Bool{Value: true}
}

// AllowTranscripts restricts access to the given transcript ag_ids.
// No ids denies everything.
func AllowTranscripts(agIDs ...int64) Restriction {
	return func(agID Expr) Expr {
		if len(agIDs) == 0 {
			return Bool{Value: false}
		}
		list := make([]Expr, len(agIDs))
		for i, id := range agIDs {
			list[i] = Lit{Value: id}
		}
		return In{X: agID, List: list}
	}
}

// AllowCorpora restricts access to transcripts of the named corpora.
func AllowCorpora(corpora ...string) Restriction {
	return func(agID Expr) Expr {
		if len(corpora) == 0 {
			return Bool{Value: false}
		}
		list := make([]Expr, len(corpora))
		for i, c := range corpora {
			list[i] = Lit{Value: c}
		}
		sub := &Select{
			Fields: []Field{{Expr: C("access_transcript", "ag_id")}},
			From:   Table{Name: "transcript", Alias: "access_transcript"},
			Where:  []Expr{In{X: C("access_transcript", "corpus_name"), List: list}},
		}
		return InQuery{X: agID, Query: sub}
	}
}
