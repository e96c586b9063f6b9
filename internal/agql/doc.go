// Package agql compiles AGQL annotation-query expressions to parameterized
// SQL.
//
// An expression is a boolean condition over annotations of one layer, for
// example:
//
//	layer.id == 'word' && /th.*/.test(label) && labels('pos').includes('N')
//
// The legacy spellings (AND, OR, NOT, =, <>, MATCHES, IN) parse to the same
// tree as their symbolic forms and so compile to the same query text.
//
// Compilation runs in four steps:
//
//  1. Parse builds the tree, recovering from syntax errors.
//  2. Deduce finds the layer to select from: the first equality or
//     membership test of id / layer.id against literals.
//  3. The translator for the layer's category (transcript, participant,
//     participant attribute, transcript attribute or temporal) emits a
//     queryir.Select, adding the joins that property references need.
//  4. queryir.Fold rewrites uid comparisons onto indexed id columns, and
//     querysql renders the tree for the target dialect.
//
// All problems are collected into a single CompilationError.
package agql
