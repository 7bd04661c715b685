package spec

// HttpMethod is a lower-case HTTP verb as used for path-item keys.
type HttpMethod string

const (
	HEAD    HttpMethod = "head"
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	PATCH   HttpMethod = "patch"
	DELETE  HttpMethod = "delete"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// Methods lists the HTTP methods in documentation order.
var Methods = []HttpMethod{HEAD, GET, POST, PUT, PATCH, DELETE, OPTIONS, TRACE}

// IsMethod reports whether a path-item key names an HTTP operation.
func IsMethod(key string) bool {
	for _, m := range Methods {
		if string(m) == key {
			return true
		}
	}
	return false
}

// NormalizedSpec is a document with every reference resolved and every
// path-level parameter pushed down into its operations.
type NormalizedSpec struct {
	Doc     *Node
	BaseURI string
}

// Paths returns the document's paths mapping, or nil when absent.
func (s *NormalizedSpec) Paths() *Object { return s.Doc.Get("paths").Object() }
