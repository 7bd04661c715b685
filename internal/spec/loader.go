package spec

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Settings configures loading and reference resolution.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// AllowFileRefs permits file:// references from documents that were loaded
	// over http/https. Local roots always allow them.
	AllowFileRefs bool
	// Encoding names the text encoding of local sources (e.g. "utf-8", "latin1").
	Encoding string
	// Fetcher retrieves http/https documents. When nil, refs fall back to a
	// plain GET without retries.
	Fetcher Fetcher
	// Handlers maps URI schemes to fetchers that take precedence over every
	// other remote policy.
	Handlers map[string]Fetcher
	// Cache memoizes parsed root documents. Nil disables caching.
	Cache *DocumentCache
	Logger logrus.FieldLogger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Encoding:    "utf-8",
		Logger:      logrus.StandardLogger(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithAllowFileRefs(allow bool) Option { return func(s *Settings) { s.AllowFileRefs = allow } }
func WithEncoding(name string) Option { return func(s *Settings) { s.Encoding = name } }
func WithFetcher(f Fetcher) Option { return func(s *Settings) { s.Fetcher = f } }
func WithCache(c *DocumentCache) Option { return func(s *Settings) { s.Cache = c } }
func WithLogger(l logrus.FieldLogger) Option { return func(s *Settings) { s.Logger = l } }

// WithSchemeHandler registers a fetcher for a URI scheme.
func WithSchemeHandler(scheme string, f Fetcher) Option {
	return func(s *Settings) {
		if s.Handlers == nil {
			s.Handlers = make(map[string]Fetcher)
		}
		s.Handlers[strings.ToLower(scheme)] = f
	}
}

func newSettings(opts []Option) Settings {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = logrus.StandardLogger()
	}
	return settings
}

// Source is a parsed root document together with the URI that relative
// references inside it resolve against.
type Source struct {
	Root    *Node
	BaseURI string
}

// LoadDocument reads a local YAML or JSON file using the named text encoding
// and returns its document tree. Swagger 2.0 documents are converted to
// OpenAPI 3 on the way in.
func LoadDocument(path, encoding string) (*Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", path, err), Location: path, Cause: err}
	}
	text, err := decodeText(raw, encoding)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("decode %s as %s: %v", path, encoding, err), Location: path, Cause: err}
	}
	return parseRoot(text, path)
}

// Load reads the root document from a filesystem path or an http/https URL.
// Local files go through the configured DocumentCache and are returned as a
// private copy, so callers may mutate the tree freely.
func Load(ctx context.Context, input string, opts ...Option) (*Source, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}
	settings := newSettings(opts)

	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		fetcher := settings.Fetcher
		if fetcher == nil {
			fetcher = NewHTTPFetcher(settings)
		}
		raw, err := fetcher.Fetch(ctx, input)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		text, err := decodeText(raw, "utf-8")
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("decode %s: %v", input, err), Location: input, Cause: err}
		}
		root, err := parseRoot(text, input)
		if err != nil {
			return nil, err
		}
		return &Source{Root: root, BaseURI: input}, nil
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	var root *Node
	if settings.Cache != nil {
		root, err = settings.Cache.Get(abs, settings.Encoding)
	} else {
		root, err = LoadDocument(abs, settings.Encoding)
	}
	if err != nil {
		return nil, err
	}
	return &Source{Root: root, BaseURI: FileURI(abs)}, nil
}

// FileURI turns an absolute filesystem path into a file:// URI.
func FileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func parseRoot(text []byte, location string) (*Node, error) {
	root, err := DecodeYAML(text)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse %s: %v", location, err), Location: location, Cause: err}
	}
	if isSwagger2(root) {
		converted, err := convertV2(root)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		return converted, nil
	}
	return root, nil
}

// decodeText converts source bytes in the named encoding to UTF-8. A leading
// UTF-8 byte order mark is dropped.
func decodeText(raw []byte, name string) ([]byte, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		out, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), raw)
		return out, err
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	return out, err
}
