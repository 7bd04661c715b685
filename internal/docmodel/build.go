package docmodel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/osapiref/osapiref/internal/spec"
)

// DefaultGroup collects operations whose tags match no declared group.
const DefaultGroup = "default"

// BuildOption configures how the DocModel is built from a normalized spec.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[spec.HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	patternErr  error
	log         logrus.FieldLogger
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addTags(c.includeTags, tags)
	}
}

// WithExcludeTags removes operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addTags(c.excludeTags, tags)
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// WithMethods keeps only operations using one of the provided HTTP methods.
func WithMethods(methods []spec.HttpMethod) BuildOption {
	return func(c *buildConfig) {
		if len(methods) == 0 {
			return
		}
		if c.methods == nil {
			c.methods = make(map[spec.HttpMethod]struct{}, len(methods))
		}
		for _, m := range methods {
			c.methods[spec.HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only operations whose path matches at least one of the
// provided regular expressions. An invalid pattern makes Build fail.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				if c.patternErr == nil {
					c.patternErr = err
				}
				continue
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithLogger routes flattening warnings to log.
func WithLogger(log logrus.FieldLogger) BuildOption {
	return func(c *buildConfig) { c.log = log }
}

// Build flattens a normalized spec into the documentation model: operations
// grouped by the document's declared tags, each expanded into its actions and
// carrying request and response tables.
func Build(ns *spec.NormalizedSpec, opts ...BuildOption) (*DocModel, error) {
	if ns == nil || ns.Doc == nil {
		return nil, &spec.SpecError{Code: spec.InputError, Message: "docmodel: nil document"}
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.patternErr != nil {
		return nil, &spec.SpecError{Code: spec.InputError, Message: fmt.Sprintf("docmodel: invalid path pattern: %v", cfg.patternErr), Cause: cfg.patternErr}
	}
	flat := NewFlattener(cfg.log)

	doc := ns.Doc
	info := doc.Get("info")
	if !info.IsObject() {
		return nil, spec.Malformed("#/info", "docmodel: document has no info object")
	}
	paths := ns.Paths()
	if paths == nil {
		return nil, spec.Malformed("#/paths", "docmodel: document has no paths mapping")
	}

	dm := &DocModel{
		Title:       strings.TrimSpace(info.Get("title").Text()),
		Version:     strings.TrimSpace(info.Get("version").Text()),
		Description: info.Get("description").Text(),
	}
	if dm.Description == "" {
		dm.Description = info.Get("summary").Text()
	}

	groups, index := declaredGroups(doc.Get("tags"))
	var fallback []Operation

	for _, p := range paths.Keys() {
		item, _ := paths.Get(p)
		if !matchesPath(p, cfg) {
			continue
		}
		for _, m := range spec.Methods {
			op := item.Get(string(m))
			if op == nil {
				continue
			}
			if len(cfg.methods) > 0 {
				if _, ok := cfg.methods[m]; !ok {
					continue
				}
			}
			tags := operationTags(op)
			if !allowByTags(tags, cfg) {
				continue
			}
			ops, err := buildOperations(p, m, op, tags, flat)
			if err != nil {
				return nil, err
			}
			placed := false
			for _, t := range tags {
				if i, ok := index[t]; ok {
					groups[i].Operations = append(groups[i].Operations, ops...)
					placed = true
				}
			}
			if !placed {
				fallback = append(fallback, ops...)
			}
		}
	}
	if len(fallback) > 0 {
		if i, ok := index[DefaultGroup]; ok {
			groups[i].Operations = append(groups[i].Operations, fallback...)
		} else {
			groups = append(groups, Group{Name: DefaultGroup, Operations: fallback})
		}
	}
	dm.Groups = groups
	return dm, nil
}

func declaredGroups(tags *spec.Node) ([]Group, map[string]int) {
	var groups []Group
	index := make(map[string]int)
	for _, t := range tags.Items() {
		name := strings.TrimSpace(t.Get("name").Text())
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = len(groups)
		groups = append(groups, Group{Name: name, Description: t.Get("description").Text()})
	}
	return groups, index
}

func operationTags(op *spec.Node) []string {
	var tags []string
	for _, t := range op.Get("tags").Items() {
		if s := strings.TrimSpace(t.Text()); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

func matchesPath(p string, cfg *buildConfig) bool {
	if len(cfg.pathRes) == 0 {
		return true
	}
	for _, re := range cfg.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func buildOperations(path string, method spec.HttpMethod, op *spec.Node, tags []string, flat *Flattener) ([]Operation, error) {
	rawID := op.Get("operationId")
	if !rawID.IsString() || rawID.Text() == "" {
		return nil, spec.Malformed(spec.PointerTo("paths", path, string(method), "operationId"), "docmodel: operation %s %s has no operationId", strings.ToUpper(string(method)), path)
	}
	expansions, err := Expand(path, method, op)
	if err != nil {
		return nil, err
	}
	out := make([]Operation, 0, len(expansions))
	for _, exp := range expansions {
		o := Operation{
			ID:          OperationID(rawID.Text(), exp.Action),
			Method:      method,
			Path:        path,
			Action:      exp.Action,
			Summary:     op.Get("summary").Text(),
			Description: op.Get("description").Text(),
			Deprecated:  op.Get("deprecated").Truthy(),
			Tags:        tags,
		}
		if exp.Action != "" {
			o.Summary = exp.Action + " action"
			if exp.Body.Has("description") {
				o.Summary = exp.Body.Get("description").Text()
			}
		}
		o.Request, err = requestTable(op, exp, flat)
		if err != nil {
			return nil, err
		}
		o.Responses, err = responseTables(op, exp.Action, flat)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// requestTable lists parameters first, then the body fields. Parameter rows do
// not take part in field deduplication.
func requestTable(op *spec.Node, exp Expansion, flat *Flattener) (Table, error) {
	var t Table
	for _, param := range op.Get("parameters").Items() {
		t.Rows = append(t.Rows, FieldRow{
			Name:        param.Get("name").Text(),
			Location:    param.Get("in").Text(),
			Type:        typeText(param.Lookup("schema", "type")),
			Description: param.Get("description").Text(),
		})
	}
	t.Rows = slices.AppendSeq(t.Rows, flat.Rows(exp.Body, "", NewFieldSet()))

	examples, err := schemaExamples(exp.Body)
	if err != nil {
		return t, err
	}
	t.Examples = examples
	if exp.Action == "" {
		media, err := mediaExamples(op.Lookup("requestBody", "content", "application/json"))
		if err != nil {
			return t, err
		}
		t.Examples = append(t.Examples, media...)
	}
	return t, nil
}

// responseTables builds one table per status code, ordered by code.
func responseTables(op *spec.Node, action string, flat *Flattener) ([]Response, error) {
	responses := op.Get("responses").Object()
	codes := slices.Clone(responses.Keys())
	slices.Sort(codes)

	out := make([]Response, 0, len(codes))
	for _, code := range codes {
		rsp, _ := responses.Get(code)
		r := Response{Code: code, Description: rsp.Get("description").Text()}
		schema := jsonSchema(rsp)
		if action != "" {
			schema = MatchResponse(schema, action)
		}
		r.Table.Rows = slices.Collect(flat.Rows(schema, "", NewFieldSet()))
		examples, err := schemaExamples(schema)
		if err != nil {
			return nil, err
		}
		r.Table.Examples = examples
		if action == "" {
			media, err := mediaExamples(rsp.Lookup("content", "application/json"))
			if err != nil {
				return nil, err
			}
			r.Table.Examples = append(r.Table.Examples, media...)
		}
		out = append(out, r)
	}
	return out, nil
}

// schemaExamples reads a schema's examples: a mapping of name to literal, or
// a list of unnamed literals.
func schemaExamples(schema *spec.Node) ([]Example, error) {
	ex := schema.Get("examples")
	var out []Example
	switch {
	case ex.IsObject():
		for _, name := range ex.Object().Keys() {
			e, err := example(name, ex.Get(name))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	case ex.IsArray():
		for _, v := range ex.Items() {
			e, err := example("", v)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// mediaExamples reads a media type's single example and its named examples.
func mediaExamples(media *spec.Node) ([]Example, error) {
	var out []Example
	if media.Has("example") {
		e, err := example("", media.Get("example"))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	examples := media.Get("examples")
	for _, name := range examples.Object().Keys() {
		obj := examples.Get(name)
		if !obj.Has("value") {
			continue
		}
		e, err := example(name, obj.Get("value"))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func example(name string, v *spec.Node) (Example, error) {
	if v.IsString() {
		return Example{Name: name, Text: v.Text()}, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Example{}, fmt.Errorf("docmodel: render example %q: %w", name, err)
	}
	return Example{Name: name, Text: string(b)}, nil
}
