package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
)

const guidanceIndent = "  "

// Guidance renders the field list as plain text for feedback and repair prompts, one line per
// field with nested object fields indented under their parent.
func (d *Descriptor) Guidance() string {
	var builder strings.Builder
	d.writeGuidance(&builder, "")
	return strings.TrimRight(builder.String(), "\n")
}

func (d *Descriptor) writeGuidance(builder *strings.Builder, indent string) {
	for _, field := range d.fields {
		builder.WriteString(indent)
		builder.WriteString("- ")
		builder.WriteString(field.Name)
		builder.WriteString(" (")
		builder.WriteString(field.Type.String())
		if field.Optional {
			builder.WriteString(", optional")
		} else {
			builder.WriteString(", required")
		}
		builder.WriteString(")")
		if field.Description != "" {
			builder.WriteString(": ")
			builder.WriteString(field.Description)
		}
		if rules := describeConstraints(field.Constraints); rules != "" {
			builder.WriteString(" [")
			builder.WriteString(rules)
			builder.WriteString("]")
		}
		builder.WriteString("\n")
		if nested := nestedDescriptor(field.Type); nested != nil {
			nested.writeGuidance(builder, indent+guidanceIndent)
		}
	}
}

func describeConstraints(constraints []Constraint) string {
	descriptions := make([]string, 0, len(constraints))
	for _, constraint := range constraints {
		if text := strings.TrimSpace(constraint.Describe()); text != "" {
			descriptions = append(descriptions, text)
		}
	}
	return strings.Join(descriptions, "; ")
}

func nestedDescriptor(fieldType Type) *Descriptor {
	switch fieldType.Kind {
	case KindObject:
		return fieldType.Object
	case KindList:
		if fieldType.Elem != nil {
			return nestedDescriptor(*fieldType.Elem)
		}
	}
	return nil
}

// JSONSchema renders the descriptor as a JSON Schema object document.
func (d *Descriptor) JSONSchema() map[string]any {
	properties := make(map[string]any, len(d.fields))
	required := make([]any, 0, len(d.fields))
	for _, field := range d.fields {
		property := typeDocument(field.Type)
		if field.Description != "" {
			property["description"] = field.Description
		}
		for _, constraint := range field.Constraints {
			if contributor, ok := constraint.(jsonSchemaContributor); ok {
				contributor.contribute(field.Type.Kind, property)
			}
		}
		properties[field.Name] = property
		if !field.Optional {
			required = append(required, field.Name)
		}
	}
	document := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	if d.description != "" {
		document["description"] = d.description
	}
	return document
}

func typeDocument(fieldType Type) map[string]any {
	switch fieldType.Kind {
	case KindString:
		return map[string]any{"type": "string"}
	case KindInteger:
		return map[string]any{"type": "integer"}
	case KindFloat:
		return map[string]any{"type": "number"}
	case KindBoolean:
		return map[string]any{"type": "boolean"}
	case KindList:
		document := map[string]any{"type": "array"}
		if fieldType.Elem != nil {
			document["items"] = typeDocument(*fieldType.Elem)
		}
		return document
	case KindObject:
		if fieldType.Object == nil {
			return map[string]any{"type": "object"}
		}
		return fieldType.Object.JSONSchema()
	default:
		return map[string]any{}
	}
}

// JSONSchemaBytes is JSONSchema encoded as compact JSON. Map keys are sorted by the encoder,
// so the bytes are stable for a given descriptor.
func (d *Descriptor) JSONSchemaBytes() ([]byte, error) {
	return json.Marshal(d.JSONSchema())
}

// Fingerprint identifies the descriptor's observable contract: name, JSON Schema, guidance
// text and normalizers.
func (d *Descriptor) Fingerprint() string {
	hasher := sha256.New()
	hasher.Write([]byte(d.name))
	hasher.Write([]byte{0})
	if encoded, err := d.JSONSchemaBytes(); err == nil {
		hasher.Write(encoded)
	}
	hasher.Write([]byte{0})
	hasher.Write([]byte(d.Guidance()))
	d.writeNormalizers(hasher, "")
	return hex.EncodeToString(hasher.Sum(nil))
}

func (d *Descriptor) writeNormalizers(writer io.Writer, prefix string) {
	for _, field := range d.fields {
		for _, normalizer := range field.Normalizers {
			_, _ = writer.Write([]byte(prefix + field.Name + ":" + normalizer.Name() + "\n"))
		}
		if nested := nestedDescriptor(field.Type); nested != nil {
			nested.writeNormalizers(writer, prefix+field.Name+".")
		}
	}
}
