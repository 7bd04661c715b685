package docmodel

import (
	"iter"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osapiref/osapiref/internal/spec"
)

// FieldSet holds the dotted field paths already emitted for one table.
type FieldSet map[string]struct{}

func NewFieldSet() FieldSet { return FieldSet{} }

func (s FieldSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// add marks path as emitted and reports whether it was new.
func (s FieldSet) add(path string) bool {
	if s.Has(path) {
		return false
	}
	s[path] = struct{}{}
	return true
}

// Flattener turns resolved schemas into field rows.
type Flattener struct {
	Log logrus.FieldLogger
}

func NewFlattener(log logrus.FieldLogger) *Flattener {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Flattener{Log: log}
}

// Rows walks schema depth-first in declaration order and yields one row per
// documented field under fieldPath. Paths already in emitted are skipped and
// every yielded path is added to it, so the sequence consumes its set and is
// not meant to be ranged over twice.
//
// Object schemas with properties yield a row for themselves (when fieldPath
// is set) and recurse into each property. Arrays yield nothing. A oneOf
// without a type is merged into the same path when its discriminator is
// "microversion" or "action"; any other union yields nothing and logs a
// warning.
func (f *Flattener) Rows(schema *spec.Node, fieldPath string, emitted FieldSet) iter.Seq[FieldRow] {
	return func(yield func(FieldRow) bool) {
		f.walk(schema, fieldPath, emitted, yield)
	}
}

// Flatten collects the rows of schema into a fresh table.
func (f *Flattener) Flatten(schema *spec.Node) []FieldRow {
	return slices.Collect(f.Rows(schema, "", NewFieldSet()))
}

func (f *Flattener) walk(schema *spec.Node, fieldPath string, emitted FieldSet, yield func(FieldRow) bool) bool {
	if !schema.IsObject() {
		return true
	}
	typ := primaryType(schema.Get("type"))
	switch {
	case typ == "object" && schema.Has("properties"):
		if fieldPath != "" && emitted.add(fieldPath) {
			if !yield(bodyRow(schema, fieldPath)) {
				return false
			}
		}
		props := schema.Get("properties")
		if !props.IsObject() {
			f.log().WithField("field", displayPath(fieldPath)).Warn("properties is not a mapping; skipping")
			return true
		}
		for _, key := range props.Object().Keys() {
			child := key
			if fieldPath != "" {
				child = fieldPath + "." + key
			}
			if !f.walk(props.Get(key), child, emitted, yield) {
				return false
			}
		}
	case typ == "array":
		// Item schemas are not documented as rows.
	case typ != "":
		if fieldPath != "" && emitted.add(fieldPath) {
			if !yield(bodyRow(schema, fieldPath)) {
				return false
			}
		}
	}

	if typ != "" || !schema.Has("oneOf") {
		return true
	}
	switch d := discriminator(schema); d {
	case DiscriminatorMicroversion, DiscriminatorAction:
		for _, member := range schema.Get("oneOf").Items() {
			if !f.walk(member, fieldPath, emitted, yield) {
				return false
			}
		}
	default:
		f.log().WithFields(logrus.Fields{
			"field":         displayPath(fieldPath),
			"discriminator": d,
		}).Warn("oneOf without a known discriminator; no fields documented")
	}
	return true
}

func (f *Flattener) log() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}

func displayPath(p string) string {
	if p == "" {
		return "<root>"
	}
	return p
}

func bodyRow(schema *spec.Node, fieldPath string) FieldRow {
	minVer := extension(schema, "min-ver").Text()
	maxVer := extension(schema, "max-ver").Text()
	return FieldRow{
		Name:        fieldPath,
		Location:    LocationBody,
		Type:        typeText(schema.Get("type")),
		Description: describe(schema.Get("description").Text(), minVer, maxVer),
		MinVersion:  minVer,
		MaxVersion:  maxVer,
	}
}

// describe appends the version availability note to a description. When both
// bounds are set only the upper one is noted.
func describe(desc, minVer, maxVer string) string {
	var note string
	switch {
	case maxVer != "":
		note = "**Available until version " + maxVer + "**"
	case minVer != "":
		note = "**New in version " + minVer + "**"
	default:
		return desc
	}
	if desc == "" {
		return note
	}
	return desc + "\n\n" + note
}

// primaryType returns the schema type used for traversal. For a type list such
// as [string, "null"] it is the first non-null entry.
func primaryType(t *spec.Node) string {
	if t.IsString() {
		return t.Text()
	}
	for _, item := range t.Items() {
		if s := item.Text(); s != "" && s != "null" {
			return s
		}
	}
	return ""
}

// typeText renders a declared type for display; type lists are joined with " | ".
func typeText(t *spec.Node) string {
	if !t.IsArray() {
		return t.Text()
	}
	parts := make([]string, 0, len(t.Items()))
	for _, item := range t.Items() {
		if s := item.Text(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " | ")
}
