package spec

import (
	"testing"
)

func TestV2Compat_MultipleBodyMerged(t *testing.T) {
	t.Parallel()
	// Two body params (invalid v2) are merged into a single body schema.
	root := mustDecode(t, `
swagger: "2.0"
info: { title: t, version: "1.0.0" }
paths:
  /x:
    post:
      parameters:
      - in: body
        name: a
        required: true
        schema: { type: string }
      - in: query
        name: q
        type: string
      - in: body
        name: b
        schema: { type: integer }
      responses: { '200': { description: ok } }
`)
	if !preprocessV2ForCompatibility(root) {
		t.Fatalf("expected changes")
	}
	params := root.Lookup("paths", "/x", "post", "parameters").Items()
	if len(params) != 2 {
		t.Fatalf("expected merged body plus query param, got %s", NewArray(params...))
	}
	body := params[0]
	if body.Get("name").Text() != "body" || body.Get("in").Text() != "body" {
		t.Fatalf("expected merged body parameter first, got %s", body)
	}
	if body.Lookup("schema", "properties", "b", "type").Text() != "integer" {
		t.Fatalf("merged schema lost b: %s", body)
	}
	if req := body.Lookup("schema", "required").Items(); len(req) != 1 || req[0].Text() != "a" {
		t.Fatalf("required: got %s", body.Lookup("schema", "required"))
	}
	if params[1].Get("name").Text() != "q" {
		t.Fatalf("non-body params must be kept, got %s", params[1])
	}
}

func TestV2Compat_BodyAndFormData_ToFormData(t *testing.T) {
	t.Parallel()
	// Mixing body + formData (file) converts body to formData and adds consumes multipart.
	root := mustDecode(t, `
swagger: "2.0"
info: { title: t, version: "1.0.0" }
paths:
  /upload:
    post:
      parameters:
      - in: body
        name: desc
        schema: { type: string }
      - in: formData
        name: file
        type: file
        required: true
      responses: { '200': { description: ok } }
`)
	if !preprocessV2ForCompatibility(root) {
		t.Fatalf("expected changes")
	}
	op := root.Lookup("paths", "/upload", "post")
	for _, p := range op.Get("parameters").Items() {
		if p.Get("in").Text() == "body" {
			t.Fatalf("expected no body params after conversion to formData, got %s", op)
		}
	}
	if !containsText(op.Get("consumes").Items(), "multipart/form-data") {
		t.Fatalf("expected consumes multipart/form-data, got %s", op.Get("consumes"))
	}
}

func TestV2Compat_CompliantSpecUntouched(t *testing.T) {
	t.Parallel()
	root := mustDecode(t, `
swagger: "2.0"
paths:
  /x:
    parameters: []
    put:
      parameters:
      - {in: body, name: a, schema: {type: string}}
`)
	before := root.String()
	if preprocessV2ForCompatibility(root) {
		t.Fatalf("expected no changes")
	}
	if root.String() != before {
		t.Fatalf("document changed: %s", root)
	}
}
