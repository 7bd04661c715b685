package docmodel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osapiref/osapiref/internal/spec"
)

const actionOp = `
operationId: servers/server_id/action:post
deprecated: true
requestBody:
  content:
    application/json:
      schema:
        oneOf:
          - x-openstack: {action-name: pause}
            type: object
            properties:
              pause: {type: "null"}
          - type: object
            properties:
              resize:
                type: object
                properties:
                  flavorRef: {type: string}
          - x-openstack: {action-name: os-start}
            type: object
            properties:
              os-start: {type: "null"}
        x-openstack:
          discriminator: action
`

func TestExpand_ActionUnion(t *testing.T) {
	t.Parallel()
	op := node(t, actionOp)
	exps, err := Expand("/servers/{server_id}/action", spec.POST, op)
	require.NoError(t, err)
	require.Len(t, exps, 3)

	names := []string{exps[0].Action, exps[1].Action, exps[2].Action}
	require.Equal(t, []string{"pause", "resize", "os-start"}, names)
	for _, e := range exps {
		require.Same(t, op, e.Operation)
	}
	require.True(t, exps[1].Body.Lookup("properties", "resize").IsObject())
}

func TestExpand_SingleOperation(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		path string
		op   string
	}{
		"plain path": {
			path: "/servers",
			op:   `{operationId: servers:post, requestBody: {content: {application/json: {schema: {type: object}}}}}`,
		},
		"action path without body": {
			path: "/servers/{id}/action",
			op:   `{operationId: a}`,
		},
		"discriminator unset": {
			path: "/servers/{id}/action",
			op: `
operationId: a
requestBody:
  content:
    application/json:
      schema:
        oneOf: [{type: object, properties: {pause: {}}}, {type: object, properties: {unpause: {}}}]
`,
		},
		"empty union": {
			path: "/servers/{id}/action",
			op:   `{operationId: a, requestBody: {content: {application/json: {schema: {oneOf: [], x-openstack: {discriminator: action}}}}}}`,
		},
		"microversion union": {
			path: "/servers/{id}/action",
			op:   `{operationId: a, requestBody: {content: {application/json: {schema: {oneOf: [{type: object}], x-openstack: {discriminator: microversion}}}}}}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			op := node(t, tc.op)
			exps, err := Expand(tc.path, spec.POST, op)
			require.NoError(t, err)
			require.Len(t, exps, 1)
			require.Empty(t, exps[0].Action)
			require.True(t, exps[0].Body.Equal(op.Lookup("requestBody", "content", "application/json", "schema")))
		})
	}
}

func TestExpand_VariantWithoutName(t *testing.T) {
	t.Parallel()
	op := node(t, `
operationId: a
requestBody:
  content:
    application/json:
      schema:
        x-openstack: {discriminator: action}
        oneOf:
          - {type: object, properties: {pause: {}}}
          - {type: object}
`)
	_, err := Expand("/servers/{id}/action", spec.POST, op)
	require.ErrorIs(t, err, spec.ErrMalformedSpec)
	var se *spec.SpecError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "#/paths/~1servers~1{id}~1action/post/requestBody/content/application~1json/schema/oneOf/1", se.JSONPointer)
}

func TestExpand_RejectsNonMapping(t *testing.T) {
	t.Parallel()
	_, err := Expand("/x", spec.GET, spec.NewString("nope"))
	require.ErrorIs(t, err, spec.ErrMalformedSpec)
}

func TestOperationID(t *testing.T) {
	t.Parallel()
	cases := []struct{ raw, action, want string }{
		{"servers:get", "", "servers_get"},
		{"servers/server_id/action:post", "pause", "servers_server_id_action_post-pause"},
		{"plain", "os-start", "plain-os-start"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, OperationID(tc.raw, tc.action))
	}
}
