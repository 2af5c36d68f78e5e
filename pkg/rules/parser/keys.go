package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	documentKeys   = []string{"id", "description", "applicability", "alwaysApply", "delegates", "clauses"}
	delegationKeys = []string{"domain", "to"}
	constraintKeys = []string{"kind", "predicate", "severity", "description", "marker"}
	predicateKeys  = []string{"feature", "op", "value"}
)

// checkDocumentKeys rejects unknown keys anywhere in a document so that a
// misspelt field is reported with its location instead of being ignored.
func checkDocumentKeys(root *yaml.Node, source string) error {
	if err := checkKeys(root, documentKeys, source); err != nil {
		return err
	}

	if delegates := valueOf(root, "delegates"); delegates != nil && delegates.Kind == yaml.SequenceNode {
		for _, item := range delegates.Content {
			if err := checkKeys(item, delegationKeys, source); err != nil {
				return err
			}
		}
	}

	clauses := valueOf(root, "clauses")
	if clauses == nil || clauses.Kind != yaml.MappingNode {
		return nil
	}
	for i := 1; i < len(clauses.Content); i += 2 {
		list := clauses.Content[i]
		if list.Kind != yaml.SequenceNode {
			continue
		}
		for _, item := range list.Content {
			if err := checkKeys(item, constraintKeys, source); err != nil {
				return err
			}
			if pred := valueOf(item, "predicate"); pred != nil {
				if err := checkKeys(pred, predicateKeys, source); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkKeys(node *yaml.Node, valid []string, source string) error {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		if contains(valid, key.Value) {
			continue
		}
		return &ParseError{
			Type:       ErrorTypeStructural,
			File:       source,
			Line:       key.Line,
			Column:     key.Column,
			Message:    fmt.Sprintf("unknown key %q", key.Value),
			Suggestion: suggest(key.Value, valid),
		}
	}
	return nil
}

// valueOf returns the value node for key in a mapping node.
func valueOf(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
