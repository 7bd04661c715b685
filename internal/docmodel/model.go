package docmodel

import "github.com/osapiref/osapiref/internal/spec"

// Flattened documentation model handed to emitters and renderers.

// LocationBody is the location of every row produced from a body schema.
const LocationBody = "body"

type DocModel struct {
	Title       string  `json:"title" yaml:"title"`
	Version     string  `json:"version" yaml:"version"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Groups      []Group `json:"groups" yaml:"groups"`
}

type Group struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  []Operation `json:"operations" yaml:"operations"`
}

// Operation is one documented (path, method, action) combination.
type Operation struct {
	ID          string          `json:"id" yaml:"id"`
	Method      spec.HttpMethod `json:"method" yaml:"method"`
	Path        string          `json:"path" yaml:"path"`
	Action      string          `json:"action,omitempty" yaml:"action,omitempty"`
	Summary     string          `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Deprecated  bool            `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	Tags        []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
	Request     Table           `json:"request" yaml:"request"`
	Responses   []Response      `json:"responses,omitempty" yaml:"responses,omitempty"`
}

type Response struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Table       Table  `json:"table" yaml:"table"`
}

// Table is an ordered list of field rows plus literal example payloads.
type Table struct {
	Rows     []FieldRow `json:"rows" yaml:"rows"`
	Examples []Example  `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// FieldRow documents one parameter or body field. Name is the dotted field
// path for body rows.
type FieldRow struct {
	Name        string `json:"name" yaml:"name"`
	Location    string `json:"location" yaml:"location"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	MinVersion  string `json:"minVersion,omitempty" yaml:"minVersion,omitempty"`
	MaxVersion  string `json:"maxVersion,omitempty" yaml:"maxVersion,omitempty"`
}

// Example is a named literal payload. Text is the string itself for string
// examples and indented JSON otherwise.
type Example struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Text string `json:"text" yaml:"text"`
}
