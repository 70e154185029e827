package models

import "time"

// VariableType is the declared shape of one template variable.
type VariableType string

const (
	VarString  VariableType = "string"
	VarNumber  VariableType = "number"
	VarBoolean VariableType = "boolean"
	VarList    VariableType = "list"
	VarObject  VariableType = "object"
)

// Variable declares a value a template expects. Fields describes the
// members of an object, or of each element of a list.
type Variable struct {
	Type     VariableType        `firestore:"type" yaml:"type" json:"type"`
	Required bool                `firestore:"required,omitempty" yaml:"required,omitempty" json:"required,omitempty"`
	Fields   map[string]Variable `firestore:"fields,omitempty" yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Template is a versioned legal-document template. Templates are seeded
// out-of-band and only read while requests are processed.
type Template struct {
	Slug        string              `firestore:"slug" yaml:"slug" json:"slug"`
	Name        string              `firestore:"name" yaml:"name" json:"name"`
	Description string              `firestore:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Version     int                 `firestore:"version" yaml:"version" json:"version"`
	Content     string              `firestore:"content" yaml:"-" json:"-"`
	Variables   map[string]Variable `firestore:"variables,omitempty" yaml:"variables,omitempty" json:"variables,omitempty"`
	UpdatedAt   time.Time           `firestore:"updatedAt,omitempty" yaml:"-" json:"updatedAt"`
}
