package loader

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"
	"github.com/xeipuuv/gojsonschema"
)

// ehrSchema describes the subset of a Synthea-style patient record that
// FlattenEHR reads. Unknown fields are allowed.
const ehrSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "gender": {"type": ["string", "null"]},
    "birthDate": {"type": ["string", "null"]},
    "conditions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"code": {"$ref": "#/definitions/concept"}}
      }
    },
    "medications": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"medicationCodeableConcept": {"$ref": "#/definitions/concept"}}
      }
    },
    "observations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "code": {"$ref": "#/definitions/concept"},
          "valueQuantity": {
            "type": "object",
            "properties": {
              "unit": {"type": ["string", "null"]}
            }
          }
        }
      }
    }
  },
  "definitions": {
    "concept": {
      "type": "object",
      "properties": {"text": {"type": ["string", "null"]}}
    }
  }
}`

var compiledEHRSchema = mustCompileSchema(ehrSchema)

func mustCompileSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("loader: invalid EHR schema: %v", err))
	}
	return schema
}

// ValidateEHR checks a raw record against the EHR schema. Syntax errors and
// schema violations both wrap ErrMalformedRecord.
func ValidateEHR(data []byte) error {
	if err := fastjson.ValidateBytes(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	result, err := compiledEHRSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedRecord, strings.Join(msgs, "; "))
	}
	return nil
}

// FlattenEHR validates a structured patient record and renders it as a
// plain-text note:
//
//	Patient: Jane Doe
//	Gender: female
//	Birth Date: 1970-01-01
//
//	Conditions:
//	- Pneumonia
//
//	Medications:
//	- Amoxicillin 500 MG
//
//	Observations:
//	- Body temperature: 38.9 Cel
func FlattenEHR(data []byte) (string, error) {
	if err := ValidateEHR(data); err != nil {
		return "", err
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	lines := make([]string, 0, 16)

	name := "Unknown"
	if n := present(v, "name"); n != nil {
		name = scalarString(n)
	}
	lines = append(lines, "Patient: "+name)
	if g := present(v, "gender"); g != nil {
		lines = append(lines, "Gender: "+scalarString(g))
	}
	if b := present(v, "birthDate"); b != nil {
		lines = append(lines, "Birth Date: "+scalarString(b))
	}

	if v.Exists("conditions") {
		lines = append(lines, "\nConditions:")
		for _, c := range v.GetArray("conditions") {
			lines = append(lines, "- "+string(c.GetStringBytes("code", "text")))
		}
	}

	if v.Exists("medications") {
		lines = append(lines, "\nMedications:")
		for _, m := range v.GetArray("medications") {
			lines = append(lines, "- "+string(m.GetStringBytes("medicationCodeableConcept", "text")))
		}
	}

	if v.Exists("observations") {
		lines = append(lines, "\nObservations:")
		for _, o := range v.GetArray("observations") {
			text := string(o.GetStringBytes("code", "text"))
			val := o.Get("valueQuantity", "value")
			unit := string(o.GetStringBytes("valueQuantity", "unit"))
			switch {
			case truthy(val) && unit != "":
				lines = append(lines, fmt.Sprintf("- %s: %s %s", text, scalarString(val), unit))
			case text != "":
				lines = append(lines, "- "+text)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

// present returns the field value, treating explicit nulls as absent.
func present(v *fastjson.Value, key string) *fastjson.Value {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return nil
	}
	return f
}

// scalarString renders strings unquoted and everything else as JSON.
func scalarString(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}

// truthy mirrors the truthiness of a JSON value: null, false, zero, the
// empty string and empty containers are false.
func truthy(v *fastjson.Value) bool {
	if v == nil {
		return false
	}
	switch v.Type() {
	case fastjson.TypeNull, fastjson.TypeFalse:
		return false
	case fastjson.TypeNumber:
		return v.GetFloat64() != 0
	case fastjson.TypeString:
		return len(v.GetStringBytes()) > 0
	case fastjson.TypeArray:
		return len(v.GetArray()) > 0
	case fastjson.TypeObject:
		return v.GetObject().Len() > 0
	}
	return true
}
