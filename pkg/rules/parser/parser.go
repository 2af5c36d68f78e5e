package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/rampart/pkg/rules"
)

// DefaultMaxFileSize bounds a single rule file.
const DefaultMaxFileSize = 1 << 20

// Parser parses rule documents from YAML.
type Parser struct {
	maxFileSize int64
	validate    bool
}

// NewParser creates a parser with default settings: 1 MiB file limit,
// per-document validation enabled.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: DefaultMaxFileSize,
		validate:    true,
	}
}

// WithMaxFileSize sets the maximum file size in bytes.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	if size > 0 {
		p.maxFileSize = size
	}
	return p
}

// WithValidation toggles rules.Document.Validate on each parsed document.
func (p *Parser) WithValidation(enabled bool) *Parser {
	p.validate = enabled
	return p
}

// IsRuleFile reports whether path has a rule file extension and is not
// hidden.
func IsRuleFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

// ParseFile parses every document in the file at path.
func (p *Parser) ParseFile(path string) ([]*rules.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Type: ErrorTypeIO, File: path, Message: "failed to access file", Cause: err}
	}
	if info.Size() > p.maxFileSize {
		return nil, &ParseError{
			Type:    ErrorTypeIO,
			File:    path,
			Message: fmt.Sprintf("file size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Type: ErrorTypeIO, File: path, Message: "failed to read file", Cause: err}
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses every document in data. source names the origin in
// errors and in each document's Source.
func (p *Parser) ParseBytes(data []byte, source string) ([]*rules.Document, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &ParseError{
			Type:    ErrorTypeIO,
			File:    source,
			Message: fmt.Sprintf("data size %d exceeds maximum %d bytes", len(data), p.maxFileSize),
		}
	}

	var docs []*rules.Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{
				Type:       ErrorTypeSyntax,
				File:       source,
				Line:       lineOf(err),
				Message:    strings.TrimPrefix(err.Error(), "yaml: "),
				Suggestion: "check indentation, colons and quoting",
				Cause:      err,
			}
		}

		doc, err := p.decodeDocument(&node, source)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// decodeDocument converts one YAML document node. An empty document
// yields nil.
func (p *Parser) decodeDocument(node *yaml.Node, source string) (*rules.Document, error) {
	root := node
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, nil
		}
		root = root.Content[0]
	}
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Type:    ErrorTypeStructural,
			File:    source,
			Line:    root.Line,
			Column:  root.Column,
			Message: "rule document must be a mapping",
		}
	}

	if err := checkDocumentKeys(root, source); err != nil {
		return nil, err
	}

	var doc rules.Document
	if err := root.Decode(&doc); err != nil {
		line := lineOf(err)
		if line == 0 {
			line = root.Line
		}
		return nil, &ParseError{
			Type:    ErrorTypeStructural,
			File:    source,
			Line:    line,
			Message: strings.TrimPrefix(err.Error(), "yaml: "),
			Cause:   err,
		}
	}
	doc.Source = source
	doc.Normalize()

	if p.validate {
		if err := doc.Validate(); err != nil {
			return nil, &ParseError{
				Type:    ErrorTypeValidation,
				File:    source,
				Line:    root.Line,
				Column:  root.Column,
				Message: err.Error(),
				Cause:   err,
			}
		}
	}
	return &doc, nil
}

// ParseDir parses every rule file under dir, recursively, skipping hidden
// files and directories. Documents are returned in path order. All file
// errors are collected into an *ErrorList.
func (p *Parser) ParseDir(dir string) ([]*rules.Document, error) {
	files, err := ListRuleFiles(dir)
	if err != nil {
		return nil, &ParseError{Type: ErrorTypeIO, File: dir, Message: "failed to list rule files", Cause: err}
	}

	var (
		docs []*rules.Document
		errs ErrorList
	)
	for _, file := range files {
		parsed, err := p.ParseFile(file)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				errs.Add(pe)
			} else {
				errs.Add(&ParseError{Type: ErrorTypeIO, File: file, Message: err.Error(), Cause: err})
			}
			continue
		}
		docs = append(docs, parsed...)
	}
	if err := errs.ToError(); err != nil {
		return docs, err
	}
	return docs, nil
}

// ListRuleFiles returns the sorted rule files under dir.
func ListRuleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsRuleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
