// Package harness runs scripted scenarios against a record store.
//
// A scenario is a YAML list of store operations with expectations. The
// harness executes it against a fresh database, records each step's
// outcome together with every change batch seen by a subscriber of All(),
// and compares the resulting trace against a golden file.
//
// # Scenario Format
//
//	name: add_and_search
//	description: "Titles are found regardless of case and diacritics"
//	steps:
//	  - op: create
//	    field: localized
//	    value: Obcy
//	    as: alien
//	  - op: search
//	    query: OBC
//	    expect: [Obcy]
//	  - op: update
//	    ref: alien
//	    code: "590123"
//	    localized: Obcy
//	    original: Alien
//	  - op: delete
//	    ref: missing
//	    expect_error: not_found
//	assertions:
//	  - type: final_state
//	    titles: ["590123"]
//	  - type: change_count
//	    count: 3
//
// # Operations
//
//   - create: inserts a record with one field set (field, value, as)
//   - create_unique: inserts a record with a code unless present (value, as, expect bool)
//   - update: replaces all three fields (ref, code, localized, original)
//   - delete: removes a record (ref)
//   - exists: checks a code exactly (value, expect bool)
//   - search: folded substring search (query, expect titles)
//   - list: every record (expect titles)
//
// update and delete accept expect_error: not_found.
//
// # Deterministic Testing
//
// Records receive the identities rec-1, rec-2, ... in creation order and
// change batches are collected in delivery order, which equals commit
// order. The same scenario therefore always yields byte-identical traces.
package harness
