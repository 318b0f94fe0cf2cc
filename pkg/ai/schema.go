package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	starterSchema = jsonschema.MustCompileString("starter.schema.json", `{
		"type": "object",
		"required": ["prompt"],
		"properties": {"prompt": {"type": "string", "minLength": 1}}
	}`)

	supportSchema = jsonschema.MustCompileString("support.schema.json", `{
		"type": "object",
		"required": ["response"],
		"properties": {"response": {"type": "string", "minLength": 1}}
	}`)

	hobbySchema = jsonschema.MustCompileString("hobbies.schema.json", `{
		"type": "object",
		"required": ["hobbies"],
		"properties": {"hobbies": {"type": "string"}}
	}`)
)

// decodeOutput validates content against schema and decodes it into target.
func decodeOutput(content string, schema *jsonschema.Schema, target interface{}) error {
	content = strings.TrimSpace(content)

	var generic interface{}
	if err := json.Unmarshal([]byte(content), &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}
