package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const issueRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flexproof.dev/schemas/issue-request.json",
  "type": "object",
  "required": ["claimType", "periodStart", "periodEnd", "counterpartyId", "purpose", "rightsValidFrom", "rightsValidTo"],
  "properties": {
    "claimType": {
      "type": "string",
      "enum": ["PeakWindowCompliance", "DemandChargeDeltaEstimate"]
    },
    "periodStart": {"type": "string", "format": "date-time"},
    "periodEnd": {"type": "string", "format": "date-time"},
    "baselineMode": {
      "type": "string",
      "enum": ["HistoricalLookback", "CounterfactualModel"]
    },
    "lookbackStart": {"type": "string", "format": "date-time"},
    "counterpartyId": {"type": "string", "minLength": 1},
    "purpose": {"type": "string", "minLength": 1},
    "rightsValidFrom": {"type": "string", "format": "date-time"},
    "rightsValidTo": {"type": "string", "format": "date-time"},
    "constraints": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  },
  "additionalProperties": false
}`

// RequestValidator validates inbound issue requests against an embedded
// JSON Schema before any domain logic runs.
type RequestValidator struct {
	issue *jsonschema.Schema
}

// NewRequestValidator compiles the embedded schemas.
func NewRequestValidator() (*RequestValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("issue-request.json",
		bytes.NewReader([]byte(issueRequestSchema))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("issue-request.json")
	if err != nil {
		return nil, fmt.Errorf("compile issue request schema: %w", err)
	}
	return &RequestValidator{issue: schema}, nil
}

// ValidateIssue checks raw request bytes against the issue request schema.
func (v *RequestValidator) ValidateIssue(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse request body: %w", err)
	}
	if err := v.issue.Validate(doc); err != nil {
		return fmt.Errorf("request schema validation: %w", err)
	}
	return nil
}
