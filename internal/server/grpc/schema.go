package grpc

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaUploadFile = "upload_file.json"
	schemaSyncBatch  = "sync_batch.json"
	schemaFilename   = "filename.json"
)

// validator checks raw request bodies before they are decoded.
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	c.AssertContent()

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(e.Name(), doc); err != nil {
			return nil, fmt.Errorf("schema %s: %w", e.Name(), err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(entries))}
	for _, e := range entries {
		sch, err := c.Compile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", e.Name(), err)
		}
		v.schemas[e.Name()] = sch
	}
	return v, nil
}

func mustValidator() *validator {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}

var requestSchemas = mustValidator()

// FieldViolation is one schema failure, located by JSON pointer.
type FieldViolation struct {
	Field       string
	Description string
}

// SchemaError reports every violation found in a request body.
type SchemaError struct {
	Violations []FieldViolation
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Description)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// validate checks body against the named schema. An empty name accepts
// anything.
func (v *validator) validate(name string, body []byte) error {
	if name == "" {
		return nil
	}
	sch, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return &SchemaError{Violations: []FieldViolation{{Field: "/", Description: "malformed JSON"}}}
	}

	err = sch.Validate(inst)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	se := &SchemaError{}
	collect(verr, se)
	return se
}

func collect(verr *jsonschema.ValidationError, se *SchemaError) {
	if len(verr.Causes) == 0 {
		se.Violations = append(se.Violations, FieldViolation{
			Field:       "/" + strings.Join(verr.InstanceLocation, "/"),
			Description: verr.Error(),
		})
		return
	}
	for _, c := range verr.Causes {
		collect(c, se)
	}
}
