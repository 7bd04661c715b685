package spec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// MaxRefDepth bounds the number of nested references followed from one
// resolution root. Cycles are cut long before this; the limit guards against
// remote documents that mint new URIs on every hop.
const MaxRefDepth = 256

// Resolver replaces JSON references ("$ref") with the content they point at.
// Local pointers resolve against the root document; remote documents are
// fetched once per Resolver and kept for its lifetime.
//
// A Resolver is a single resolution session and is not safe for concurrent use.
type Resolver struct {
	base      *url.URL
	root      *Node
	settings  Settings
	remote    map[string]*Node
	allowFile bool

	// resolved keeps targets whose resolution cut no cycle, keyed by absolute
	// URI. Such a result does not depend on the chain that reached it.
	resolved map[string]*Node
	cuts     int
}

// scope is the document relative refs are currently resolved against. It
// changes when a ref crosses into a remote document.
type scope struct {
	base *url.URL
	root *Node
}

// NewResolver starts a resolution session for root, whose location is baseURI.
func NewResolver(baseURI string, root *Node, opts ...Option) (*Resolver, error) {
	settings := newSettings(opts)
	base, err := url.Parse(baseURI)
	if err != nil {
		return nil, refError(baseURI, err, "spec: invalid base URI %q: %v", baseURI, err)
	}
	scheme := strings.ToLower(base.Scheme)
	return &Resolver{
		base:      base,
		root:      root,
		settings:  settings,
		remote:    make(map[string]*Node),
		resolved:  make(map[string]*Node),
		allowFile: settings.AllowFileRefs || scheme == "" || scheme == "file",
	}, nil
}

// ResolveRefs resolves every reference in doc, which lives at baseURI.
func ResolveRefs(ctx context.Context, baseURI string, doc *Node, opts ...Option) (*Node, error) {
	r, err := NewResolver(baseURI, doc, opts...)
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, doc)
}

// Resolve walks node depth-first and substitutes every reference, in place.
// The returned node is node itself unless node is a reference object.
//
// A reference that already appears on the chain of references leading to it
// is not followed; it becomes {"type": "object"} so recursive schemas stay
// finite and still read as a schema.
func (r *Resolver) Resolve(ctx context.Context, node *Node) (*Node, error) {
	return r.resolve(ctx, node, scope{base: r.base, root: r.root}, nil)
}

func (r *Resolver) resolve(ctx context.Context, node *Node, sc scope, chain []string) (*Node, error) {
	switch node.Kind() {
	case ObjectKind:
		if ref := node.Get("$ref"); ref.IsString() {
			return r.follow(ctx, ref.str, sc, chain)
		}
		for _, k := range node.obj.keys {
			child, err := r.resolve(ctx, node.obj.vals[k], sc, chain)
			if err != nil {
				return nil, err
			}
			node.obj.vals[k] = child
		}
	case ArrayKind:
		for i, item := range node.arr {
			child, err := r.resolve(ctx, item, sc, chain)
			if err != nil {
				return nil, err
			}
			node.arr[i] = child
		}
	}
	return node, nil
}

func (r *Resolver) follow(ctx context.Context, ref string, sc scope, chain []string) (*Node, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, refError(ref, err, "spec: malformed $ref %q: %v", ref, err)
	}
	abs := u
	if sc.base != nil {
		abs = sc.base.ResolveReference(u)
	}
	key := abs.String()
	if slices.Contains(chain, key) {
		r.cuts++
		return placeholder(), nil
	}
	if done, ok := r.resolved[key]; ok {
		return done.DeepCopy(), nil
	}
	if len(chain) >= MaxRefDepth {
		return nil, refError(ref, nil, "spec: $ref %q nested deeper than %d references", ref, MaxRefDepth)
	}

	docURL := *abs
	docURL.Fragment = ""
	docURL.RawFragment = ""
	next := sc
	if !sameDocument(u, &docURL, sc.base) {
		doc, err := r.remoteDocument(ctx, &docURL)
		if err != nil {
			return nil, refError(ref, err, "spec: resolve $ref %q: %v", ref, err)
		}
		next = scope{base: &docURL, root: doc}
	}

	target, err := lookupPointer(next.root, abs.Fragment)
	if err != nil {
		return nil, refError(ref, err, "spec: resolve $ref %q: %v", ref, err)
	}
	nextChain := append(chain[:len(chain):len(chain)], key)
	cuts := r.cuts
	out, err := r.resolve(ctx, target.DeepCopy(), next, nextChain)
	if err != nil {
		return nil, err
	}
	if r.cuts == cuts {
		// Spliced results are never walked again, so out stays as resolved.
		r.resolved[key] = out
	}
	return out, nil
}

func placeholder() *Node { return ObjectOf("type", "object") }

func sameDocument(ref, docURL, base *url.URL) bool {
	if ref.Scheme == "" && ref.Host == "" && ref.Path == "" {
		return true
	}
	if base == nil {
		return false
	}
	b := *base
	b.Fragment = ""
	b.RawFragment = ""
	return b.String() == docURL.String()
}

// remoteDocument fetches and parses the document at docURL once per session.
func (r *Resolver) remoteDocument(ctx context.Context, docURL *url.URL) (*Node, error) {
	key := docURL.String()
	if doc, ok := r.remote[key]; ok {
		return doc, nil
	}
	log := r.settings.Logger.WithField("uri", key)

	scheme := strings.ToLower(docURL.Scheme)
	ext := strings.ToLower(path.Ext(docURL.Path))

	var doc *Node
	switch handler, ok := r.settings.Handlers[scheme]; {
	case ok:
		raw, err := handler.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if doc, err = parseRemote(raw); err != nil {
			return nil, err
		}
	case ext == ".yaml" || ext == ".yml" || ext == ".json":
		raw, err := r.fetch(ctx, docURL)
		if err != nil {
			return nil, err
		}
		if doc, err = parseRemote(raw); err != nil {
			return nil, err
		}
	default:
		raw, err := r.fetch(ctx, docURL)
		if err != nil {
			return nil, err
		}
		if doc, err = parseGenericJSON(raw); err != nil {
			return nil, err
		}
	}
	log.Debug("fetched remote spec document")
	r.remote[key] = doc
	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, docURL *url.URL) ([]byte, error) {
	switch strings.ToLower(docURL.Scheme) {
	case "http", "https":
		if r.settings.Fetcher != nil {
			return r.settings.Fetcher.Fetch(ctx, docURL.String())
		}
	case "", "file":
		if !r.allowFile {
			return nil, fmt.Errorf("blocked file ref: %s", docURL.String())
		}
	}
	return openURI(ctx, docURL)
}

func parseRemote(raw []byte) (*Node, error) {
	text, err := decodeText(raw, "utf-8")
	if err != nil {
		return nil, err
	}
	return DecodeYAML(text)
}

// parseGenericJSON handles documents whose extension says nothing about their
// format; those must be JSON.
func parseGenericJSON(raw []byte) (*Node, error) {
	text, err := decodeText(raw, "utf-8")
	if err != nil {
		return nil, err
	}
	if !json.Valid(text) {
		return nil, fmt.Errorf("document is not valid JSON")
	}
	return DecodeYAML(text)
}

// lookupPointer evaluates an RFC 6901 pointer against doc.
func lookupPointer(doc *Node, pointer string) (*Node, error) {
	p, err := jsonpointer.New(pointer)
	if err != nil {
		return nil, err
	}
	cur := doc
	for i, tok := range p.DecodedTokens() {
		switch cur.Kind() {
		case ObjectKind:
			next, ok := cur.obj.Get(tok)
			if !ok {
				return nil, fmt.Errorf("pointer %q: missing key %q", pointer, tok)
			}
			cur = next
		case ArrayKind:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return nil, fmt.Errorf("pointer %q: invalid array index %q", pointer, tok)
			}
			cur = cur.arr[idx]
		default:
			return nil, fmt.Errorf("pointer %q: cannot traverse %s at token %d", pointer, cur.Kind(), i)
		}
	}
	return cur, nil
}
