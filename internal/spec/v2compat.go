package spec

import (
	"encoding/json"
	"strings"

	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
)

var v2Methods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true, "patch": true, "options": true, "head": true,
}

func isSwagger2(root *Node) bool {
	return strings.HasPrefix(strings.TrimSpace(root.Get("swagger").Text()), "2.")
}

// convertV2 turns a Swagger 2.0 tree into an OpenAPI 3 tree. Object key order
// after conversion follows kin-openapi's marshalling, not the source document.
func convertV2(root *Node) (*Node, error) {
	preprocessV2ForCompatibility(root)
	raw, err := root.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(raw, &v2); err != nil {
		return nil, err
	}
	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(v3)
	if err != nil {
		return nil, err
	}
	return DecodeYAML(out)
}

// preprocessV2ForCompatibility rewrites non-compliant Swagger 2.0 operations in
// place so kin-openapi can convert them:
//   - several body parameters are merged into one object-typed body parameter;
//   - body parameters mixed with formData become formData parameters and the
//     operation consumes multipart/form-data.
//
// It reports whether anything changed.
func preprocessV2ForCompatibility(root *Node) bool {
	modified := false
	root.Get("paths").Object().Range(func(_ string, item *Node) bool {
		item.Object().Range(func(method string, op *Node) bool {
			if !v2Methods[strings.ToLower(method)] || !op.IsObject() {
				return true
			}
			params := op.Get("parameters").Items()
			bodyCount, hasFormData := 0, false
			for _, p := range params {
				switch strings.ToLower(p.Get("in").Text()) {
				case "body":
					bodyCount++
				case "formdata":
					hasFormData = true
				}
			}
			switch {
			case bodyCount == 0:
			case hasFormData:
				out := make([]*Node, 0, len(params))
				for _, p := range params {
					if strings.EqualFold(p.Get("in").Text(), "body") {
						p = formDataFromBodyParam(p)
						modified = true
					}
					out = append(out, p)
				}
				op.obj.Set("parameters", NewArray(out...))
				consumes := op.Get("consumes")
				if !consumes.IsArray() {
					consumes = NewArray()
					op.obj.Set("consumes", consumes)
				}
				if !containsText(consumes.Items(), "multipart/form-data") {
					_ = consumes.Append(NewString("multipart/form-data"))
				}
			case bodyCount > 1:
				props := NewObject()
				required := NewArray()
				rest := make([]*Node, 0, len(params))
				for _, p := range params {
					if !strings.EqualFold(p.Get("in").Text(), "body") {
						rest = append(rest, p)
						continue
					}
					name := p.Get("name").Text()
					if name == "" {
						name = "field"
					}
					schema := schemaFromParam(p)
					if schema == nil {
						schema = ObjectOf("type", "string")
					}
					props.obj.Set(name, schema)
					if p.Get("required").Truthy() {
						_ = required.Append(NewString(name))
					}
				}
				body := ObjectOf("type", "object", "properties", props)
				if len(required.Items()) > 0 {
					body.obj.Set("required", required)
				}
				merged := ObjectOf("in", "body", "name", "body", "schema", body)
				op.obj.Set("parameters", NewArray(append([]*Node{merged}, rest...)...))
				modified = true
			}
			return true
		})
		return true
	})
	return modified
}

func containsText(list []*Node, want string) bool {
	for _, v := range list {
		if v.IsString() && v.Text() == want {
			return true
		}
	}
	return false
}

func schemaFromParam(p *Node) *Node {
	if sch := p.Get("schema"); sch.IsObject() {
		return sch
	}
	t := p.Get("type").Text()
	if t == "" {
		return nil
	}
	out := ObjectOf("type", t)
	if it := p.Get("items"); it.IsObject() {
		out.obj.Set("items", it)
	}
	if f := p.Get("format").Text(); f != "" {
		out.obj.Set("format", NewString(f))
	}
	return out
}

func formDataFromBodyParam(p *Node) *Node {
	name := p.Get("name").Text()
	if name == "" {
		name = "field"
	}
	out := ObjectOf("in", "formData", "name", name)
	if desc := p.Get("description").Text(); desc != "" {
		out.obj.Set("description", NewString(desc))
	}
	if req := p.Get("required"); req.Kind() == BoolKind {
		out.obj.Set("required", req)
	}
	var typ, format string
	var items *Node
	if sch := p.Get("schema"); sch.IsObject() {
		typ = sch.Get("type").Text()
		format = sch.Get("format").Text()
		if it := sch.Get("items"); it.IsObject() {
			items = it
		}
		if typ == "" && sch.Has("$ref") {
			// A referenced object has no formData form.
			typ = "string"
		}
	}
	if typ == "" {
		typ = p.Get("type").Text()
		format = p.Get("format").Text()
		if it := p.Get("items"); it.IsObject() {
			items = it
		}
	}
	if typ == "" {
		typ = "string"
	}
	out.obj.Set("type", NewString(typ))
	if items != nil {
		out.obj.Set("items", items)
	}
	if format != "" {
		out.obj.Set("format", NewString(format))
	}
	return out
}
