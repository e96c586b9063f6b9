// Package queryir provides the relational fragment IR shared by the AGQL
// expression compiler and the matrix compiler.
//
// ARCHITECTURE:
//
// Both compilers build queries as trees instead of concatenating text:
//
//	[AGQL expression] → agql ─┐
//	                          ├→ [Query IR] → Fold → querysql → SQLite SQL
//	[Matrix]     → compiler ──┘                               → PostgreSQL SQL
//
// Values never appear in the tree as text. Every literal is a Lit and is
// rendered as a bind parameter; only the constant booleans produced by
// folding are rendered inline ("1 = 1" / "1 = 0").
//
// SEALED INTERFACES:
//
// Expr and Statement are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so renderers can switch
// exhaustively:
//
//	switch e := expr.(type) {
//	case Col:
//	    // alias.column
//	case Lit:
//	    // bind parameter
//	...
//	}
//
// FOLDING:
//
// Annotation uids are the layer prefix concatenated with a numeric id. An
// expression comparing such a reconstruction against a literal uid
// (IDRef = 'ew_0_12') cannot use the index on the id column, so Fold
// rewrites it to the bare comparison (annotation_id = 12). See Fold.
package queryir
