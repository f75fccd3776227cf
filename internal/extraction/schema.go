package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchemaJSON rejects payloads that are not an object of string fields.
// Absent fields are fine; normalizeResult fills them with the placeholder.
const resultSchemaJSON = `{
	"type": "object",
	"properties": {
		"patient_first_name": {"type": "string"},
		"patient_last_name": {"type": "string"},
		"patient_dob": {"type": "string"},
		"confidence": {"type": "string"},
		"notes": {"type": "string"}
	}
}`

var resultSchema = mustCompileResultSchema()

func mustCompileResultSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", strings.NewReader(resultSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("result.json")
}

func validateResultJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := resultSchema.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}
