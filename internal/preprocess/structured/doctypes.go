package structured

import (
	"encoding/json"
	"strings"
)

// Property is one field of an extracted object.
type Property struct {
	Name        string
	Description string
}

// DocType describes how one known PDF is extracted.
type DocType struct {
	// File is the PDF base name that selects this type, e.g. "staff.pdf".
	File string

	// Field is the top-level key holding the extracted list, in both the
	// model response and the output artifact.
	Field string

	// ListDescription documents Field in the rendered schema.
	ListDescription string

	Properties []Property

	// Instruction precedes the schema in the system prompt.
	Instruction string
}

// DefaultDocTypes are the document types of the Teach For Nepal corpus.
var DefaultDocTypes = []DocType{
	{
		File:            "staff.pdf",
		Field:           "staff_members",
		ListDescription: "List of staff members",
		Instruction:     "Extract information about staff members from the provided text. Ensure the output is a JSON list of staff members following the schema below:",
		Properties: []Property{
			{Name: "name", Description: "name of the staff member"},
			{Name: "role", Description: "role or designation of the staff member"},
			{Name: "bio", Description: "short biography or description of the staff member"},
		},
	},
	{
		File:            "contacts.pdf",
		Field:           "contacts",
		ListDescription: "List of contacts",
		Instruction:     "Extract contact information from the provided text. Ensure the output is a JSON list of contacts following the schema below:",
		Properties: []Property{
			{Name: "name", Description: "name of the contact person"},
			{Name: "email", Description: "email address"},
			{Name: "phone", Description: "phone number"},
			{Name: "organization", Description: "organization or company name"},
		},
	},
	{
		File:            "partners-and-supporters.pdf",
		Field:           "partners",
		ListDescription: "List of partners",
		Instruction:     "Extract partner information from the provided text. Ensure the output is a JSON list of partners following the schema below:",
		Properties: []Property{
			{Name: "name", Description: "name of the partner organization"},
			{Name: "type", Description: "type of partnership"},
			{Name: "description", Description: "description of the partnership"},
			{Name: "contact_person", Description: "main contact person"},
		},
	},
}

// Schema returns the JSON schema of the model output for d.
func (d DocType) Schema() string {
	props := make(map[string]any, len(d.Properties))
	required := make([]string, 0, len(d.Properties))
	for _, p := range d.Properties {
		props[p.Name] = map[string]string{"type": "string", "description": p.Description}
		required = append(required, p.Name)
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			d.Field: map[string]any{
				"type":        "array",
				"description": d.ListDescription,
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		},
		"required": []string{d.Field},
	}
	b, _ := json.Marshal(schema)
	return string(b)
}

// SystemPrompt is the instruction followed by the output format section.
func (d DocType) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(d.Instruction)
	b.WriteString("\nThe output should be formatted as a JSON instance that conforms to the JSON schema below.\n")
	b.WriteString("Return only the JSON object, without commentary.\n\n")
	b.WriteString("Here is the output schema:\n```\n")
	b.WriteString(d.Schema())
	b.WriteString("\n```")
	return b.String()
}

// lookup indexes types by file name.
func lookup(types []DocType) map[string]DocType {
	out := make(map[string]DocType, len(types))
	for _, t := range types {
		out[t.File] = t
	}
	return out
}
