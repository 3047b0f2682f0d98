package webhook

import "github.com/invopop/jsonschema"

// EnvelopeSchema reflects the delivery envelope into a JSON Schema that
// consumers can use to validate incoming webhook bodies. The schema is
// self-contained (no $defs references) and marks every envelope field
// required.
func EnvelopeSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	return r.Reflect(new(Envelope))
}
