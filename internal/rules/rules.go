// Package rules implements the OTC rules editor workflow against the
// /api/otc_rules endpoint. Rules text may carry // and /* */ comments and
// trailing commas; they are stripped before the document is validated and
// sent.
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ValidationError reports rules text that cannot be sent. Line and Column
// are 1-based and zero when unknown.
type ValidationError struct {
	Line   int
	Column int
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid rules at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("invalid rules: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var errNotObject = errors.New("rules document must be a JSON object")

// Parse validates text and returns the compact JSON document.
func Parse(text []byte) (json.RawMessage, error) {
	stripped := jsonc.ToJSON(text)
	if len(bytes.TrimSpace(stripped)) == 0 {
		return nil, &ValidationError{Err: errors.New("empty document")}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(stripped, &doc); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			line, col := position(stripped, syntax.Offset)
			return nil, &ValidationError{Line: line, Column: col, Err: err}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Err: errNotObject}
		}
		return nil, &ValidationError{Err: err}
	}
	if doc == nil {
		return nil, &ValidationError{Err: errNotObject}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, stripped); err != nil {
		return nil, &ValidationError{Err: err}
	}
	return buf.Bytes(), nil
}

// Pretty indents doc with two spaces, the layout operators edit.
func Pretty(doc json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// API is the part of the HOS client the editor needs.
// *client.HTTPClient satisfies it.
type API interface {
	GetRules(ctx context.Context) (json.RawMessage, error)
	SaveRules(ctx context.Context, doc json.RawMessage) error
}

// Editor loads, validates and saves the rules document.
type Editor struct {
	api API
}

func NewEditor(api API) *Editor {
	return &Editor{api: api}
}

// Load fetches the rules and returns them pretty-printed.
func (e *Editor) Load(ctx context.Context) (string, error) {
	doc, err := e.api.GetRules(ctx)
	if err != nil {
		return "", fmt.Errorf("load rules: %w", err)
	}
	return Pretty(doc)
}

// Save validates text and posts it. Nothing is sent when validation
// fails.
func (e *Editor) Save(ctx context.Context, text []byte) error {
	doc, err := Parse(text)
	if err != nil {
		return err
	}
	if err := e.api.SaveRules(ctx, doc); err != nil {
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}

// Backup writes the current server rules to path.
func (e *Editor) Backup(ctx context.Context, path string) error {
	text, err := e.Load(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Restore reads path, validates it and saves it to the server.
func (e *Editor) Restore(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := e.Save(ctx, data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
