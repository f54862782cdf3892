package jsandy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema validates decoded request/event payloads against a JSON Schema
// reflected from a Go type, grounded on varavelio-vdl/toolchain's
// internal/schema/validate_schema.go: reflect once at construction with
// invopop/jsonschema, compile once with santhosh-tekuri/jsonschema/v6, then
// validate many times per request.
type Schema struct {
	name     string
	compiled *jsonschemav6.Schema
}

// Input reflects a JSON Schema from T and compiles it, panicking at startup
// (not per-request) if T's shape cannot be reflected into a valid schema --
// mirroring how procedure builders declare their Input type once, at router
// construction time.
func Input[T any]() *Schema {
	var zero T
	name := reflect.TypeOf(zero)
	label := "input"
	if name != nil {
		label = name.String()
	}

	s, err := compileSchemaFor[T](label)
	if err != nil {
		panic(fmt.Sprintf("jsandy: cannot build schema for %s: %v", label, err))
	}
	return s
}

func compileSchemaFor[T any](label string) (*Schema, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}

	raw := reflector.Reflect(new(T))
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal reflected schema: %w", err)
	}

	unmarshaled, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal reflected schema: %w", err)
	}

	url := "jsandy://" + label
	compiler := jsonschemav6.NewCompiler()
	if err := compiler.AddResource(url, unmarshaled); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Schema{name: label, compiled: compiled}, nil
}

// Validate checks a decoded document (map[string]any / []any / primitives,
// as produced by DecodeField/DecodeBody) against the schema, returning a
// *Error tagged KindSchemaMismatch on failure.
func (s *Schema) Validate(doc any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if err := s.compiled.Validate(doc); err != nil {
		appErr := NewError(KindSchemaMismatch, fmt.Sprintf("%s failed validation", s.name)).WithCause(err)
		if verr, ok := err.(*jsonschemav6.ValidationError); ok {
			for _, cause := range flattenValidationErrors(verr) {
				appErr = appErr.WithField(cause.path, cause.message)
			}
		}
		return appErr
	}
	return nil
}

type schemaFieldError struct {
	path    string
	message string
}

func flattenValidationErrors(verr *jsonschemav6.ValidationError) []schemaFieldError {
	var out []schemaFieldError
	var walk func(e *jsonschemav6.ValidationError)
	walk = func(e *jsonschemav6.ValidationError) {
		path := "/"
		if len(e.InstanceLocation) > 0 {
			path = "/" + joinLocation(e.InstanceLocation)
		}
		out = append(out, schemaFieldError{path: path, message: e.Error()})
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return out
}

func joinLocation(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}
