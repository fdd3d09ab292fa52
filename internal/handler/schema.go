package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const reportSchemaPath = "schemas/incident_report.schema.json"

// ReportValidator checks raw report bodies against the incident report schema
// before they are decoded.
type ReportValidator struct {
	schema *jsonschema.Schema
}

// NewReportValidator compiles the embedded schema.
func NewReportValidator() (*ReportValidator, error) {
	data, err := schemaFS.ReadFile(reportSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("read report schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(reportSchemaPath, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("add report schema: %w", err)
	}
	schema, err := compiler.Compile(reportSchemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}
	return &ReportValidator{schema: schema}, nil
}

// MustReportValidator panics if the embedded schema does not compile.
func MustReportValidator() *ReportValidator {
	v, err := NewReportValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns an InvalidArgument error describing the first violation.
func (v *ReportValidator) Validate(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return domain.ErrInvalidArgument("invalid request body")
	}
	if err := v.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return domain.ErrInvalidArgument("invalid report: " + leafMessage(verr))
		}
		return domain.ErrInvalidArgument("invalid report")
	}
	return nil
}

// leafMessage picks the deepest cause, which names the offending field.
func leafMessage(e *jsonschema.ValidationError) string {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	if e.InstanceLocation == "" {
		return e.Message
	}
	return e.InstanceLocation + ": " + e.Message
}
