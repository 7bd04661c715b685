package spec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

const sampleSpec = `
openapi: 3.1.0
info:
  title: Compute API
  version: "2.1"
paths:
  /servers/{server_id}:
    parameters:
      - $ref: '#/components/parameters/server_id'
      - name: p2
        in: header
    get:
      operationId: servers:show
      parameters:
        - name: p3
          in: query
      responses:
        "200":
          description: ok
    delete:
      operationId: servers:delete
    summary: not an operation
components:
  parameters:
    server_id:
      name: server_id
      in: path
      schema: {type: string}
`

func paramNames(op *Node) []string {
	var names []string
	for _, p := range op.Get("parameters").Items() {
		names = append(names, p.Get("name").Text())
	}
	return names
}

func TestNormalize_HoistsSharedParameters(t *testing.T) {
	t.Parallel()
	doc := mustDecode(t, sampleSpec)
	ns, err := Normalize(context.Background(), doc, "file:///tmp/compute.yaml")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	item, ok := ns.Paths().Get("/servers/{server_id}")
	if !ok {
		t.Fatalf("path item missing")
	}
	if _, ok := item.Object().Get("parameters"); ok {
		t.Fatalf("path-level parameters must be removed")
	}
	if diff := cmp.Diff([]string{"p3", "server_id", "p2"}, paramNames(item.Get("get"))); diff != "" {
		t.Fatalf("get params (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"server_id", "p2"}, paramNames(item.Get("delete"))); diff != "" {
		t.Fatalf("delete params (-want +got):\n%s", diff)
	}
	if item.Get("summary").Text() != "not an operation" || item.Get("summary").Has("parameters") {
		t.Fatalf("non-method keys must be left alone: %s", item)
	}

	// Hoisted parameters are independent copies.
	item.Get("get").Get("parameters").Items()[1].Object().Set("description", NewString("edited"))
	if item.Get("delete").Get("parameters").Items()[0].Has("description") {
		t.Fatalf("hoisted parameters are shared between operations")
	}
}

func TestNormalize_DocumentWithoutPaths(t *testing.T) {
	t.Parallel()
	doc := mustDecode(t, `{openapi: 3.1.0, info: {title: t, version: "1"}}`)
	ns, err := Normalize(context.Background(), doc, "")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ns.Paths() != nil {
		t.Fatalf("expected no paths")
	}
}

func TestNormalize_MalformedShapes(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		src     string
		pointer string
	}{
		"paths not a mapping": {src: `{paths: [1]}`, pointer: "#/paths"},
		"item not a mapping":  {src: `{paths: {/a: 1}}`, pointer: "#/paths/~1a"},
		"shared not a list":   {src: `{paths: {/a: {parameters: {x: 1}}}}`, pointer: "#/paths/~1a/parameters"},
		"operation not a map": {src: `{paths: {/a: {get: [1]}}}`, pointer: "#/paths/~1a/get"},
		"own params not list": {src: `{paths: {/a: {parameters: [{name: p}], get: {parameters: 3}}}}`, pointer: "#/paths/~1a/get/parameters"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(context.Background(), mustDecode(t, tc.src), "")
			if !errors.Is(err, ErrMalformedSpec) {
				t.Fatalf("expected ErrMalformedSpec, got %v", err)
			}
			var se *SpecError
			if !errors.As(err, &se) || se.JSONPointer != tc.pointer {
				t.Fatalf("pointer: got %#v want %q", err, tc.pointer)
			}
		})
	}
}

// For any mix of shared and own parameters, every operation ends up with its
// own entries followed by the shared ones, in declaration order.
func TestNormalize_HoistingOrderProperty(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		shared := rapid.SliceOfN(rapid.StringMatching(`s[a-z]{1,4}`), 0, 4).Draw(rt, "shared")
		methods := rapid.SliceOfNDistinct(rapid.SampledFrom(Methods), 1, 4, func(m HttpMethod) HttpMethod { return m }).Draw(rt, "methods")

		item := NewObject()
		if len(shared) > 0 {
			list := NewArray()
			for _, s := range shared {
				_ = list.Append(ObjectOf("name", s, "in", "query"))
			}
			item.Object().Set("parameters", list)
		}
		own := map[HttpMethod][]string{}
		for _, m := range methods {
			names := rapid.SliceOfN(rapid.StringMatching(`o[a-z]{1,4}`), 0, 3).Draw(rt, "own_"+string(m))
			own[m] = names
			op := NewObject()
			if len(names) > 0 {
				list := NewArray()
				for _, n := range names {
					_ = list.Append(ObjectOf("name", n))
				}
				op.Object().Set("parameters", list)
			}
			item.Object().Set(string(m), op)
		}
		doc := ObjectOf("paths", ObjectOf("/x", item))
		if _, err := Normalize(context.Background(), doc, ""); err != nil {
			rt.Fatalf("normalize: %v", err)
		}
		for _, m := range methods {
			want := append(append([]string(nil), own[m]...), shared...)
			got := paramNames(doc.Lookup("paths", "/x", string(m)))
			if len(want) == 0 {
				want = nil
			}
			if diff := cmp.Diff(want, got); diff != "" {
				rt.Fatalf("%s params (-want +got):\n%s", m, diff)
			}
		}
	})
}

func TestPointerTo(t *testing.T) {
	t.Parallel()
	if got := PointerTo("paths", "/a~b", "get"); got != "#/paths/~1a~0b/get" {
		t.Fatalf("got %q", got)
	}
}

func TestDocumentCache_ConcurrentFirstAccessParsesOnce(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	release := make(chan struct{})
	cache := NewDocumentCacheWith(func(path, enc string) (*Node, error) {
		loads.Add(1)
		<-release
		return ObjectOf("path", path, "encoding", enc), nil
	}, nil)

	var wg sync.WaitGroup
	results := make([]*Node, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := cache.Get("/spec.yaml", "utf-8")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = doc
		}(i)
	}
	close(release)
	wg.Wait()

	if cache.Len() != 1 {
		t.Fatalf("expected one entry, got %d", cache.Len())
	}
	// Late waiters may miss the singleflight window but still hit the stored entry.
	if n := loads.Load(); n < 1 || n > int32(len(results)) {
		t.Fatalf("unexpected load count %d", n)
	}
	for i, doc := range results {
		if doc == nil || doc.Get("path").Text() != "/spec.yaml" {
			t.Fatalf("result %d: %s", i, doc)
		}
		for j := i + 1; j < len(results); j++ {
			if doc == results[j] {
				t.Fatalf("results %d and %d share a tree", i, j)
			}
		}
	}
}

func TestDocumentCache_KeysAndInvalidation(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	fail := true
	cache := NewDocumentCacheWith(func(path, enc string) (*Node, error) {
		loads.Add(1)
		if fail {
			return nil, fmt.Errorf("boom")
		}
		return ObjectOf("encoding", enc), nil
	}, nil)

	if _, err := cache.Get("/a", "utf-8"); err == nil {
		t.Fatalf("expected load error")
	}
	if cache.Len() != 0 {
		t.Fatalf("failures must not be cached")
	}
	fail = false
	for _, enc := range []string{"utf-8", "latin1", "utf-8"} {
		doc, err := cache.Get("/a", enc)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Get("encoding").Text() != enc {
			t.Fatalf("wrong entry for %s: %s", enc, doc)
		}
	}
	if loads.Load() != 3 || cache.Len() != 2 {
		t.Fatalf("loads=%d len=%d", loads.Load(), cache.Len())
	}
	cache.Invalidate("/a", "utf-8")
	if _, err := cache.Get("/a", "utf-8"); err != nil || loads.Load() != 4 {
		t.Fatalf("expected reload after invalidate, loads=%d err=%v", loads.Load(), err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache")
	}
}
