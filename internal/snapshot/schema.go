package snapshot

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// #region report-schema
const reportSchemaURL = "fairaudit://schema/report.json"

// reportSchema describes the serialized tree: nodes are
// {"descriptor", "value", "depends", "details"?} with "[role] name" descriptors.
const reportSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$ref": "#/definitions/node",
	"definitions": {
		"node": {
			"type": "object",
			"required": ["descriptor", "value", "depends"],
			"additionalProperties": false,
			"properties": {
				"descriptor": {"type": "string", "pattern": "^\\[[^\\]]*\\] .+$"},
				"value": {"type": ["number", "null"]},
				"details": {"type": "string"},
				"depends": {"type": "array", "items": {"$ref": "#/definitions/node"}}
			}
		}
	}
}`

var compiledReportSchema = mustCompile(reportSchemaURL, reportSchema)

func mustCompile(url, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("snapshot: add schema: %v", err))
	}
	s, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("snapshot: compile schema: %v", err))
	}
	return s
}
// #endregion report-schema

// #region validate
// Validate checks that raw is a serialized report tree.
func Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := compiledReportSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
// #endregion validate
