package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// FieldError reports which capabilities of a payload failed validation.
// Fields holds top-level property names; "payload" stands for the object as
// a whole (unknown or missing properties).
type FieldError struct {
	Fields []string
	err    error
}

func (e *FieldError) Error() string {
	return "invalid " + strings.Join(e.Fields, ", ")
}

func (e *FieldError) Unwrap() error {
	return e.err
}

// Validator checks state payloads against JSON Schema documents. Compiled
// schemas are cached by document text.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates a new Validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks payload against schemaDoc. An empty document accepts
// anything. Payload violations are returned as *FieldError.
func (v *Validator) Validate(schemaDoc json.RawMessage, payload map[string]any) error {
	if isEmpty(schemaDoc) {
		return nil
	}

	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return err
	}

	err = compiled.Validate(payload)
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return &FieldError{Fields: invalidFields(verr), err: err}
	}
	return err
}

func isEmpty(doc json.RawMessage) bool {
	s := string(bytes.TrimSpace(doc))
	return s == "" || s == "{}" || s == "null"
}

func (v *Validator) compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cache[key]; ok {
		return s, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("parse state schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("state.json", doc); err != nil {
		return nil, fmt.Errorf("add state schema: %w", err)
	}
	compiled, err := c.Compile("state.json")
	if err != nil {
		return nil, fmt.Errorf("compile state schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// invalidFields collects the top-level properties named by the leaf causes.
func invalidFields(root *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})

	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}
		name := "payload"
		if len(e.InstanceLocation) > 0 {
			name = e.InstanceLocation[0]
		}
		seen[name] = struct{}{}
	}
	walk(root)

	return slices.Sorted(maps.Keys(seen))
}
