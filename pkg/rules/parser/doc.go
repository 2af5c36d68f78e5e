// Package parser reads rule documents from YAML.
//
// A file holds one document or a stream of documents separated by "---".
// Each document looks like:
//
//	id: web-specific
//	description: Rules for TypeScript web code
//	applicability: ["**/*.ts", "**/*.tsx"]
//	alwaysApply: false
//	delegates:
//	  - domain: input-validation
//	    to: always-apply-baseline
//	clauses:
//	  secrets:
//	    - kind: prohibition
//	      predicate: {feature: secretInClientBundle, value: true}
//	      severity: fatal
//	      description: Secrets must never ship in a client bundle
//
// Unknown keys are rejected with a suggestion for the closest known key.
// Every error is a *ParseError carrying the file, line and column; ParseDir
// returns an *ErrorList with one entry per failing document.
package parser
