// Package schemas embeds the JSON Schema documents distpub validates against.
package schemas

import _ "embed"

// WorkflowV1Schema is the JSON Schema for publish.yaml.
//
//go:embed workflow.v1.schema.json
var WorkflowV1Schema []byte
