// Package schema validates audit documents against the published JSON Schemas.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	TrailURL  = "https://audittrail.dev/schemas/trail.json"
	RecordURL = "https://audittrail.dev/schemas/record.json"
)

var (
	//go:embed trail.schema.json
	trailSchema string
	//go:embed record.schema.json
	recordSchema string
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("schema validation failed")

var (
	compileOnce sync.Once
	trail       *jsonschema.Schema
	record      *jsonschema.Schema
	compileErr  error
)

func compile() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(TrailURL, strings.NewReader(trailSchema)); err != nil {
		compileErr = fmt.Errorf("add trail schema: %w", err)
		return
	}
	if err := c.AddResource(RecordURL, strings.NewReader(recordSchema)); err != nil {
		compileErr = fmt.Errorf("add record schema: %w", err)
		return
	}
	if trail, compileErr = c.Compile(TrailURL); compileErr != nil {
		return
	}
	record, compileErr = c.Compile(RecordURL)
}

func schemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	compileOnce.Do(compile)
	return trail, record, compileErr
}

// Trail returns the raw trail schema document.
func Trail() string { return trailSchema }

// ValidateTrail checks a rendered scope document.
func ValidateTrail(data []byte) error {
	t, _, err := schemas()
	if err != nil {
		return err
	}
	return validate(t, data)
}

// Validate checks a record envelope, including the embedded trail.
func Validate(data []byte) error {
	_, r, err := schemas()
	if err != nil {
		return err
	}
	return validate(r, data)
}

func validate(s *jsonschema.Schema, data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
