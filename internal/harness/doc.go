// Package harness provides conformance testing for corpusql searches.
//
// A scenario writes a small corpus into a fresh in-memory store, runs one
// search over it through the engine and checks the matches it returns.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema:
//	  layers:
//	    - { id: pos, scope: word, key: 30, parent: word }
//	    - { id: topic, scope: freeform, alignment: interval, key: 40, parent: transcript }
//	transcripts:
//	  - name: a.trs
//	    utterances:
//	      - speaker: ann
//	        main: true
//	        words: [the, cat, sat]
//	        layers: { pos: [DT, NN, VB] }
//	    spans:
//	      - { layer: topic, label: pets, start: 0, end: 2 }
//	search:
//	  matrix:
//	    columns:
//	      - layers: { word: [{ pattern: cat }] }
//	  per_transcript: 1
//	  expect:
//	    state: done
//	assertions:
//	  - type: count
//	    count: 1
//	  - type: first_words
//	    values: [cat]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - count: Verifies the number of matches
//   - transcripts: Verifies the transcript of each match in rank order
//   - speakers: Verifies the speaker of each match in rank order
//   - first_words: Verifies the first matched word of each match in rank order
//   - strategy: Verifies the strategy the matrix compiled to
//
// # Deterministic Testing
//
// Every scenario runs against its own in-memory SQLite database, writes
// its transcripts in file order and uses a fixed search id, so graph ids,
// ranks and encoded match identifiers are identical across runs. Results
// can therefore be compared against golden snapshots (see RunWithGolden).
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/word_pair.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
