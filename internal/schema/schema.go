// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schema validates serialized bundles against an embedded JSON
// schema (draft 2020-12) before they are written.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrBundleInvalid is wrapped by every BundleError.
var ErrBundleInvalid = errors.New("bundle does not match schema")

//go:embed bundle.schema.json
var bundleSchema []byte

const resourceName = "bundle.schema.json"

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Issue is one schema violation.
type Issue struct {
	Location string
	Message  string
}

func (i Issue) String() string {
	loc := i.Location
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + i.Message
}

// BundleError lists every violation found in a bundle.
type BundleError struct {
	Issues []Issue
}

func (e *BundleError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%s: %s", ErrBundleInvalid, strings.Join(parts, "; "))
}

func (e *BundleError) Unwrap() error { return ErrBundleInvalid }

// Source returns the embedded schema document.
func Source() []byte {
	return bytes.Clone(bundleSchema)
}

func bundle() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(resourceName, bytes.NewReader(bundleSchema)); err != nil {
			compileErr = fmt.Errorf("loading bundle schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(resourceName)
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling bundle schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// ValidateBundle checks serialized bundle bytes. Violations are returned as
// a *BundleError; malformed JSON and schema compilation failures are
// returned as plain errors.
func ValidateBundle(data []byte) error {
	s, err := bundle()
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding bundle: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &BundleError{Issues: collectIssues(verr)}
		}
		return fmt.Errorf("validating bundle: %w", err)
	}
	return nil
}

// collectIssues flattens the leaves of a validation error tree.
func collectIssues(err *jsonschema.ValidationError) []Issue {
	var issues []Issue
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			issues = append(issues, Issue{
				Location: strings.TrimSpace(node.InstanceLocation),
				Message:  strings.TrimSpace(node.Message),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)
	return issues
}
