package spec

import (
	"context"
	"strings"
)

// Normalize resolves references in doc against baseURI and hoists shared
// path-level parameters into each operation. doc is mutated in place.
func Normalize(ctx context.Context, doc *Node, baseURI string, opts ...Option) (*NormalizedSpec, error) {
	resolved, err := ResolveRefs(ctx, baseURI, doc, opts...)
	if err != nil {
		return nil, err
	}
	if err := hoistParameters(resolved); err != nil {
		return nil, err
	}
	return &NormalizedSpec{Doc: resolved, BaseURI: baseURI}, nil
}

// NormalizeSource is Normalize for a loaded Source.
func NormalizeSource(ctx context.Context, src *Source, opts ...Option) (*NormalizedSpec, error) {
	return Normalize(ctx, src.Root, src.BaseURI, opts...)
}

// hoistParameters removes each path item's "parameters" list and appends it
// to every operation's own list, after the operation-specific entries.
func hoistParameters(doc *Node) error {
	paths := doc.Get("paths")
	if paths == nil {
		return nil
	}
	pathsObj, err := paths.AsObject()
	if err != nil {
		return malformed("#/paths", "spec: paths must be a mapping, got %s", paths.Kind())
	}
	for _, p := range pathsObj.Keys() {
		item, _ := pathsObj.Get(p)
		itemObj, err := item.AsObject()
		if err != nil {
			return malformed(PointerTo("paths", p), "spec: path item %s must be a mapping, got %s", p, item.Kind())
		}
		shared, _ := itemObj.Delete("parameters")
		var sharedItems []*Node
		if !shared.IsNull() {
			if sharedItems, err = shared.AsArray(); err != nil {
				return malformed(PointerTo("paths", p, "parameters"), "spec: parameters of %s must be a list", p)
			}
		}
		for _, key := range itemObj.Keys() {
			if !IsMethod(key) {
				continue
			}
			op, _ := itemObj.Get(key)
			opObj, err := op.AsObject()
			if err != nil {
				return malformed(PointerTo("paths", p, key), "spec: operation %s %s must be a mapping", strings.ToUpper(key), p)
			}
			own, ok := opObj.Get("parameters")
			if !ok || own.IsNull() {
				own = NewArray()
				opObj.Set("parameters", own)
			}
			for _, param := range sharedItems {
				// Each operation owns its copy so later edits stay local.
				if err := own.Append(param.DeepCopy()); err != nil {
					return malformed(PointerTo("paths", p, key, "parameters"), "spec: parameters of %s %s must be a list", strings.ToUpper(key), p)
				}
			}
		}
	}
	return nil
}

// PointerTo builds a "#/..." JSON pointer from raw tokens.
func PointerTo(tokens ...string) string {
	var b strings.Builder
	b.WriteString("#")
	for _, t := range tokens {
		b.WriteByte('/')
		t = strings.ReplaceAll(t, "~", "~0")
		b.WriteString(strings.ReplaceAll(t, "/", "~1"))
	}
	return b.String()
}
