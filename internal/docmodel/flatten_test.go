package docmodel

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/osapiref/osapiref/internal/spec"
)

func quietFlattener() *Flattener {
	log, _ := logtest.NewNullLogger()
	return NewFlattener(log)
}

func TestFlatten_NestedObjectsInDeclarationOrder(t *testing.T) {
	t.Parallel()
	schema := node(t, `
type: object
properties:
  server:
    type: object
    description: A server.
    properties:
      name: {type: string, description: Server name.}
      metadata:
        type: object
        properties:
          key: {type: string}
      flavorRef: {type: [string, "null"]}
  tags:
    type: array
    items: {type: string}
`)
	rows := quietFlattener().Flatten(schema)
	require.Equal(t, []string{"server", "server.name", "server.metadata", "server.metadata.key", "server.flavorRef"}, rowNames(rows))
	require.Equal(t, FieldRow{Name: "server", Location: LocationBody, Type: "object", Description: "A server."}, rows[0])
	require.Equal(t, "string | null", rows[4].Type)
	for _, r := range rows {
		require.Equal(t, LocationBody, r.Location)
	}
}

func TestFlatten_ArraysProduceNoRows(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		path := rapid.StringMatching(`([a-z]{1,5}(\.[a-z]{1,5}){0,3})?`).Draw(rt, "path")
		schema := spec.ObjectOf("type", "array", "items", spec.ObjectOf(
			"type", "object",
			"properties", spec.ObjectOf("id", spec.ObjectOf("type", "string")),
		))
		var rows []FieldRow
		for r := range quietFlattener().Rows(schema, path, NewFieldSet()) {
			rows = append(rows, r)
		}
		if len(rows) != 0 {
			rt.Fatalf("array at %q produced rows: %v", path, rows)
		}
	})
}

func TestFlatten_MicroversionVariantsDeduplicated(t *testing.T) {
	t.Parallel()
	schema := node(t, `
oneOf:
  - type: object
    properties:
      status: {type: string, description: From 2.1}
  - type: object
    properties:
      status: {type: integer, description: From 2.47}
      locked: {type: boolean, x-openstack: {min-ver: 2.9}}
x-openstack:
  discriminator: microversion
`)
	rows := quietFlattener().Flatten(schema)
	require.Equal(t, []string{"status", "locked"}, rowNames(rows))
	require.Equal(t, "string", rows[0].Type)
	require.Equal(t, "From 2.1", rows[0].Description)
	require.Equal(t, "**New in version 2.9**", rows[1].Description)
	require.Equal(t, "2.9", rows[1].MinVersion)
}

func TestFlatten_ActionVariantsShareFieldPath(t *testing.T) {
	t.Parallel()
	schema := node(t, `
type: object
properties:
  body:
    oneOf:
      - {type: object, properties: {pause: {type: "null"}}}
      - {type: object, properties: {unpause: {type: "null"}}}
    x-openstack: {discriminator: action}
`)
	rows := quietFlattener().Flatten(schema)
	require.Equal(t, []string{"body", "body.pause", "body.unpause"}, rowNames(rows))
}

// A union without a recognized discriminator is an accepted gap: it yields no
// rows and a warning.
func TestFlatten_UnknownDiscriminatorWarns(t *testing.T) {
	t.Parallel()
	// Unions without a recognised discriminator are left undocumented.
	cases := map[string]struct {
		extension string
		want      string
	}{
		"unset":        {extension: "", want: ""},
		"unrecognised": {extension: "x-openstack: {discriminator: foo}", want: "foo"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			log, hook := logtest.NewNullLogger()
			schema := node(t, `
type: object
properties:
  choice:
    `+tc.extension+`
    oneOf:
      - {type: string}
      - {type: integer}
`)
			rows := NewFlattener(log).Flatten(schema)
			require.Empty(t, rows)
			require.Len(t, hook.AllEntries(), 1)
			entry := hook.LastEntry()
			require.Equal(t, logrus.WarnLevel, entry.Level)
			require.Equal(t, "choice", entry.Data["field"])
			require.Equal(t, tc.want, entry.Data["discriminator"])
		})
	}
}

func TestFlatten_VersionNotes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, src, want string
	}{
		{"none", `{type: string, description: Plain.}`, "Plain."},
		{"min only", `{type: string, description: Zone., x-openstack: {min-ver: "2.3"}}`, "Zone.\n\n**New in version 2.3**"},
		{"max only", `{type: string, x-openstack: {max-ver: "2.35"}}`, "**Available until version 2.35**"},
		{"both", `{type: string, description: D., x-openstack: {min-ver: "2.1", max-ver: "2.10"}}`, "D.\n\n**Available until version 2.10**"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rows := quietFlattener().Flatten(spec.ObjectOf("type", "object", "properties", spec.ObjectOf("f", node(t, tc.src))))
			require.Len(t, rows, 1)
			require.Equal(t, tc.want, rows[0].Description)
		})
	}
}

func TestFlatten_EmittedSetIsThreaded(t *testing.T) {
	t.Parallel()
	f := quietFlattener()
	emitted := NewFieldSet()
	first := node(t, `{type: object, properties: {a: {type: string}, b: {type: string}}}`)
	second := node(t, `{type: object, properties: {b: {type: integer}, c: {type: string}}}`)

	var names []string
	for r := range f.Rows(first, "", emitted) {
		names = append(names, r.Name)
	}
	for r := range f.Rows(second, "", emitted) {
		names = append(names, r.Name)
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
	require.True(t, emitted.Has("b"))

	// Stopping early leaves the remaining fields unemitted.
	fresh := NewFieldSet()
	for range f.Rows(first, "", fresh) {
		break
	}
	require.True(t, fresh.Has("a"))
	require.False(t, fresh.Has("b"))
}

func TestFlatten_MissingSchema(t *testing.T) {
	t.Parallel()
	require.Empty(t, quietFlattener().Flatten(nil))
	require.Empty(t, quietFlattener().Flatten(spec.NewObject()))
	require.Empty(t, quietFlattener().Flatten(spec.ObjectOf("type", "string")))
}

// Flattening never emits the same path twice, whatever the union nesting.
func TestFlatten_NoDuplicatePaths(t *testing.T) {
	t.Parallel()
	var genSchema func(depth int) *rapid.Generator[*spec.Node]
	genSchema = func(depth int) *rapid.Generator[*spec.Node] {
		return rapid.Custom(func(rt *rapid.T) *spec.Node {
			kind := rapid.IntRange(0, 3).Draw(rt, "kind")
			if depth == 0 {
				kind = 0
			}
			switch kind {
			case 0:
				return spec.ObjectOf("type", rapid.SampledFrom([]string{"string", "integer", "boolean", "array"}).Draw(rt, "type"))
			case 1, 2:
				props := spec.NewObject()
				n := rapid.IntRange(0, 3).Draw(rt, "props")
				for i := 0; i < n; i++ {
					name := rapid.SampledFrom([]string{"id", "name", "status", "links"}).Draw(rt, fmt.Sprintf("name%d", i))
					props.Object().Set(name, genSchema(depth-1).Draw(rt, fmt.Sprintf("prop%d", i)))
				}
				return spec.ObjectOf("type", "object", "properties", props)
			default:
				members := make([]*spec.Node, rapid.IntRange(1, 3).Draw(rt, "members"))
				for i := range members {
					members[i] = genSchema(depth-1).Draw(rt, fmt.Sprintf("member%d", i))
				}
				disc := rapid.SampledFrom([]string{DiscriminatorMicroversion, DiscriminatorAction}).Draw(rt, "disc")
				return spec.ObjectOf("oneOf", spec.NewArray(members...), "x-openstack", spec.ObjectOf("discriminator", disc))
			}
		})
	}
	rapid.Check(t, func(rt *rapid.T) {
		schema := genSchema(3).Draw(rt, "schema")
		seen := map[string]bool{}
		for _, r := range quietFlattener().Flatten(schema) {
			if seen[r.Name] {
				rt.Fatalf("duplicate row %q", r.Name)
			}
			seen[r.Name] = true
		}
	})
}
