package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cfg := &InitConfig{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample osapiref configuration file",
		Long:  "Scaffold a commented osapiref configuration file that documents the render options.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg.Verbose = verbose
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.OutputPath, "out", defaultConfigName, "Where to write the sample config file")
	cmd.Flags().BoolVar(&cfg.Force, "force", false, "Overwrite the target file if it already exists")

	return cmd
}

const defaultConfigName = "osapiref.yaml"

func runInit(ctx context.Context, cfg *InitConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := strings.TrimSpace(cfg.OutputPath)
	if target == "" {
		target = defaultConfigName
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}
	log := newLogger(cfg.Verbose).WithField("path", target)

	switch st, err := os.Stat(target); {
	case err == nil && st.IsDir():
		return newUsageError(fmt.Sprintf("init: %q is a directory; pass a file path to --out", target))
	case err == nil && !cfg.Force:
		return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", target))
	case err == nil:
		log.Debug("overwriting existing config")
	}

	if err := writeConfigFile(target, []byte(strings.TrimSpace(sampleConfigYAML)+"\n")); err != nil {
		return newUsageError(fmt.Sprintf("init: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	log.Debug("wrote sample config")
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", target)
	return nil
}

// writeConfigFile replaces path with data through a temp file in the same
// directory, so readers never observe a partial config.
func writeConfigFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("place file at %s: %w", path, err)
	}
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# osapiref configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path or URL to the OpenAPI/Swagger document (http/https or local file).
# spec: ./openapi.yaml

# Text encoding of a local spec file (any WHATWG label, e.g. latin1).
# encoding: utf-8

# Output directory. When omitted, derived from the spec title.
# out: ./docs

# Output format (json|yaml).
# format: json

# Only include operations with these tags (comma-separated or list).
# includeTags: [servers,flavors]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [internal]

# Only include operations using these HTTP methods.
# methods: [get,post]

# Only include paths matching these regular expressions.
# paths: ["^/servers"]

# Timeout for each HTTP fetch of the spec or a remote $ref.
# httpTimeout: 10s

# Allow file references from specs loaded over http/https.
# allowFileRefs: false

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false
`
