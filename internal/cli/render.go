package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/osapiref/osapiref/internal/docmodel"
	"github.com/osapiref/osapiref/internal/emitter/docemitter"
	"github.com/osapiref/osapiref/internal/spec"
)

// RenderConfig captures all inputs that influence the render command after
// merging defaults, config file values, and CLI overrides.
type RenderConfig struct {
	Spec          string
	Encoding      string
	Out           string
	Format        string
	IncludeTags   []string
	ExcludeTags   []string
	Methods       []string
	Paths         []string
	HTTPTimeout   time.Duration
	AllowFileRefs bool
	ConfigPath    string
	DryRun        bool
	Force         bool
	Verbose       bool
}

func defaultRenderConfig() RenderConfig {
	return RenderConfig{Encoding: "utf-8", Format: "json", HTTPTimeout: 10 * time.Second}
}

var renderRunner = runRender

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Flatten an OpenAPI document into a documentation model",
		Long: "Resolve every $ref of an OpenAPI document, expand action endpoints and flatten " +
			"request and response schemas into field tables written as JSON or YAML. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  osapiref render --spec compute.yaml --out ./docs
  osapiref --config osapiref.yaml render --format yaml --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRenderConfig(cmd)
			if err != nil {
				return err
			}
			return renderRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("spec", "", "Path or URL to the OpenAPI/Swagger document")
	flags.String("encoding", "", "Text encoding of a local spec file; defaults to utf-8")
	flags.String("out", "", "Output directory (derived from spec title when omitted)")
	flags.String("format", "", "Output format (json|yaml); defaults to json")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
	flags.StringSlice("methods", nil, "Only include operations using these HTTP methods")
	flags.StringArray("paths", nil, "Only include paths matching this regular expression (repeatable)")
	flags.Duration("http-timeout", 0, "Timeout for each HTTP fetch; defaults to 10s")
	flags.Bool("allow-file-refs", false, "Allow file references from specs loaded over http/https")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveRenderConfig(cmd *cobra.Command) (*RenderConfig, error) {
	cfg := defaultRenderConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyRenderConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyRenderFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyRenderFlagOverrides(flags *pflag.FlagSet, cfg *RenderConfig) error {
	strs := map[string]*string{
		"spec":     &cfg.Spec,
		"encoding": &cfg.Encoding,
		"out":      &cfg.Out,
		"format":   &cfg.Format,
	}
	for name, dst := range strs {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}

	lists := map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
	}
	for name, dst := range lists {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = sanitizeTags(value)
	}

	// Patterns may contain commas, so they are never split.
	if flags.Changed("paths") {
		value, err := flags.GetStringArray("paths")
		if err != nil {
			return err
		}
		cfg.Paths = sanitizeTags(value)
	}

	if flags.Changed("http-timeout") {
		value, err := flags.GetDuration("http-timeout")
		if err != nil {
			return err
		}
		cfg.HTTPTimeout = value
	}

	bools := map[string]*bool{
		"allow-file-refs": &cfg.AllowFileRefs,
		"dry-run":         &cfg.DryRun,
		"force":           &cfg.Force,
		"verbose":         &cfg.Verbose,
	}
	for name, dst := range bools {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	return nil
}

func (c *RenderConfig) normalize() {
	c.Spec = strings.TrimSpace(c.Spec)
	c.Encoding = strings.TrimSpace(c.Encoding)
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	c.Out = strings.TrimSpace(c.Out)
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Methods = sanitizeTags(c.Methods)
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToLower(m)
	}
	c.Paths = sanitizeTags(c.Paths)
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
}

func (c *RenderConfig) validate() error {
	if c.Spec == "" {
		return newUsageError("render: --spec is required (set via flag or config file)")
	}

	if _, err := docemitter.ParseFormat(c.Format); err != nil {
		return newUsageError(fmt.Sprintf("render: unsupported --format %q (allowed: json, yaml)", c.Format))
	}

	for _, m := range c.Methods {
		if !spec.IsMethod(m) {
			return newUsageError(fmt.Sprintf("render: unsupported --methods value %q", m))
		}
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("render: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func runRender(ctx context.Context, cfg *RenderConfig) error {
	log := newLogger(cfg.Verbose)

	// 1) Load the spec (file or http/https URL), converting Swagger 2.0 on the way
	opts := []spec.Option{
		spec.WithEncoding(cfg.Encoding),
		spec.WithHTTPTimeout(cfg.HTTPTimeout),
		spec.WithAllowFileRefs(cfg.AllowFileRefs),
		spec.WithCache(spec.DefaultCache()),
		spec.WithLogger(log),
	}
	src, err := spec.Load(ctx, cfg.Spec, opts...)
	if err != nil {
		return specUsageError(err)
	}
	opts = append(opts, spec.WithFetcher(spec.NewHTTPFetcher(spec.Settings{HTTPTimeout: cfg.HTTPTimeout, MaxRetries: 1})))

	// 2) Resolve references and hoist shared parameters
	ns, err := spec.NormalizeSource(ctx, src, opts...)
	if err != nil {
		return specUsageError(err)
	}

	// 3) Flatten into the documentation model with filters
	methods := make([]spec.HttpMethod, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, spec.HttpMethod(m))
	}
	dm, err := docmodel.Build(ns,
		docmodel.WithIncludeTags(cfg.IncludeTags),
		docmodel.WithExcludeTags(cfg.ExcludeTags),
		docmodel.WithMethods(methods),
		docmodel.WithPathPatterns(cfg.Paths),
		docmodel.WithLogger(log),
	)
	if err != nil {
		return specUsageError(err)
	}
	log.WithFields(logrus.Fields{"groups": len(dm.Groups), "title": dm.Title}).Debug("built documentation model")

	// 4) Derive the output directory when omitted
	outDir := cfg.Out
	if outDir == "" {
		outDir = deriveOutDir(dm.Title)
	}
	absOut := outDir
	if ap, err := filepath.Abs(outDir); err == nil {
		absOut = ap
	}

	// 5) Emit
	format, _ := docemitter.ParseFormat(cfg.Format)
	res, err := docemitter.Emit(ctx, dm, docemitter.Options{
		OutDir: outDir,
		Format: format,
		Force:  cfg.Force,
		DryRun: cfg.DryRun,
	})
	if err != nil {
		return wrapOutputError(err, absOut)
	}
	paths := make([]string, 0, len(res.Planned))
	for _, p := range res.Planned {
		paths = append(paths, p.RelPath)
	}
	if cfg.DryRun {
		printPlan(absOut, len(res.Planned), paths)
		return nil
	}
	fmt.Fprintf(os.Stdout, "Wrote %d files to %s\n", len(paths), absOut)
	return nil
}

func printPlan(outDir string, count int, relPaths []string) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, count)
	for _, p := range relPaths {
		fmt.Fprintf(os.Stdout, "- %s\n", p)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --out or use --force when appropriate.", outDir, msg))
	}
	return err
}

// deriveOutDir names the output directory after the spec title.
func deriveOutDir(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	repl := strings.NewReplacer("/", " ", "_", " ", ".", " ", ",", " ", ":", " ")
	parts := strings.Fields(repl.Replace(t))
	if len(parts) == 0 {
		return "api-docs"
	}
	return strings.Join(parts, "-") + "-docs"
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyRenderConfigFromFile(cfg *RenderConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		var ferr error
		switch normalizeKey(key) {
		case "spec":
			cfg.Spec, ferr = valueAsString(value)
		case "encoding":
			cfg.Encoding, ferr = valueAsString(value)
		case "out":
			cfg.Out, ferr = valueAsString(value)
		case "format":
			cfg.Format, ferr = valueAsString(value)
		case "includetags":
			cfg.IncludeTags, ferr = valueAsStringSlice(value)
		case "excludetags":
			cfg.ExcludeTags, ferr = valueAsStringSlice(value)
		case "methods":
			cfg.Methods, ferr = valueAsStringSlice(value)
		case "paths":
			cfg.Paths, ferr = valueAsPatterns(value)
		case "httptimeout":
			cfg.HTTPTimeout, ferr = valueAsDuration(value)
		case "allowfilerefs":
			cfg.AllowFileRefs, ferr = valueAsBool(value)
		case "dryrun":
			cfg.DryRun, ferr = valueAsBool(value)
		case "force":
			cfg.Force, ferr = valueAsBool(value)
		case "verbose":
			cfg.Verbose, ferr = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if ferr != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, ferr))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

// valueAsPatterns is valueAsStringSlice without comma splitting.
func valueAsPatterns(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(s)}, nil
	}
	return valueAsStringSlice(v)
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return 0, nil
		}
		return time.ParseDuration(strings.TrimSpace(val))
	case int:
		return time.Duration(val) * time.Second, nil
	default:
		return 0, fmt.Errorf("expected duration string, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
