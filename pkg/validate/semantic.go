package validate

import (
	"encoding/json"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/pert/pkg/plan"
)

// ValidateDocument runs the semantic phase on a raw plan document: the JSON
// Schema generated from the Go types is compiled and applied before strict
// decoding, so shape errors surface with instance locations instead of
// decoder messages.
func ValidateDocument(data []byte) []*Error {
	schemaJSON, err := plan.GenerateJSONSchema()
	if err != nil {
		return []*Error{errorf(RuleSemantic, "", nil, "generate schema: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*Error{errorf(RuleSemantic, "", nil, "unmarshal schema: %v", err)}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("plan-v0.json", schemaDoc); err != nil {
		return []*Error{errorf(RuleSemantic, "", nil, "add schema resource: %v", err)}
	}
	sch, err := c.Compile("plan-v0.json")
	if err != nil {
		return []*Error{errorf(RuleSemantic, "", nil, "compile schema: %v", err)}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*Error{errorf(RuleSemantic, "", nil, "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*Error
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenCauses(ve) {
				errs = append(errs, errorf(RuleSemantic,
					strings.Join(cause.InstanceLocation, "/"), nil,
					"%v", cause.ErrorKind))
			}
		} else {
			errs = append(errs, errorf(RuleSemantic, "", nil, "%v", err))
		}
		return errs
	}
	return nil
}

func flattenCauses(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenCauses(cause)...)
	}
	return flat
}
