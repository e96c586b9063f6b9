// Package schema describes the annotation layers of a corpus.
//
// A Schema is read-only: it is loaded once (from defaults, YAML, or CUE) and
// consulted by the compilers to decide which physical table backs a layer and
// how two layers relate.
//
// Layers are a tagged variant. The Kind decides which fields are meaningful:
//
//	KindTranscript  the graph root; backed by the transcript table
//	KindParticipant speakers; backed by the speaker table
//	KindTemporal    time-anchored annotations; backed by annotation_layer_<Key>
//	KindAttribute   transcript or participant attributes; backed by
//	                annotation_transcript / annotation_participant, keyed by Attribute
//
// Temporal layers are ranked by Scope (freeform < meta < word < segment). Every
// temporal row stores denormalized foreign keys for each scope coarser than or
// equal to its own, which is what lets the compilers link two layers without
// walking the parent chain.
package schema
