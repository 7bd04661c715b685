package docemitter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osapiref/osapiref/internal/docmodel"
)

// Format selects the serialization of emitted files.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml"; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("docemitter: unknown format %q (want json or yaml)", s)
	}
}

// Options controls how the documentation model is written.
type Options struct {
	OutDir string // required; target directory
	Format Format // json (default) or yaml
	Force  bool   // overwrite existing files
	DryRun bool   // don't write, only plan
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files in write order.
type Result struct {
	Format  Format
	Planned []PlannedFile
}

// Index is the top-level file: the spec header plus one entry per group.
type Index struct {
	Title       string       `json:"title" yaml:"title"`
	Version     string       `json:"version" yaml:"version"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Groups      []IndexEntry `json:"groups" yaml:"groups"`
}

type IndexEntry struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Operations  int    `json:"operations" yaml:"operations"`
	File        string `json:"file" yaml:"file"`
}

// Emit writes index.<ext> and groups/<group>.<ext> for dm into opts.OutDir.
func Emit(ctx context.Context, dm *docmodel.DocModel, opts Options) (*Result, error) {
	if dm == nil {
		return nil, fmt.Errorf("docemitter: nil DocModel")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("docemitter: OutDir is required")
	}
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, fmt.Errorf("docemitter: unknown format %q", format)
	}
	ext := "." + string(format)

	files := map[string][]byte{}
	index := Index{Title: dm.Title, Version: dm.Version, Description: dm.Description}
	used := map[string]int{}
	for _, g := range dm.Groups {
		rel := "groups/" + uniqueSlug(g.Name, used) + ext
		data, err := encode(g, format)
		if err != nil {
			return nil, fmt.Errorf("docemitter: encode group %q: %w", g.Name, err)
		}
		files[rel] = data
		index.Groups = append(index.Groups, IndexEntry{
			Name:        g.Name,
			Description: g.Description,
			Operations:  len(g.Operations),
			File:        rel,
		})
	}
	data, err := encode(index, format)
	if err != nil {
		return nil, fmt.Errorf("docemitter: encode index: %w", err)
	}
	files["index"+ext] = data

	// Plan in deterministic order
	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(ctx, opts.OutDir, rels, files, opts.Force); err != nil {
			return nil, err
		}
	}
	return &Result{Format: format, Planned: planned}, nil
}

func encode(v any, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(v)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFiles(ctx context.Context, outDir string, rels []string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	// Pre-flight: if directory exists and not empty and not force, error.
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("docemitter: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(abs, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, files[rel], 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

// uniqueSlug turns a group name into a file name, numbering repeats.
func uniqueSlug(name string, used map[string]int) string {
	slug := sanitizeName(name)
	if slug == "" {
		slug = "group"
	}
	used[slug]++
	if n := used[slug]; n > 1 {
		return slug + "-" + strconv.Itoa(n)
	}
	return slug
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	// replace spaces and slashes
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ToLower(name)
	// keep alnum, dash, underscore only
	b := strings.Builder{}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}
