package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/cycles/internal/paths"
	"github.com/mesh-intelligence/cycles/pkg/types"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	Backend  string `yaml:"backend"`
	DataDir  string `yaml:"data_dir,omitempty"`
	Owner    string `yaml:"owner,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Initialize cycles storage",
		Long:        "Create the configuration and data directories, then apply the storage schema.",
		Args:        checkArgs(cobra.NoArgs),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInit(cmd)
		},
	}
}

func (a *app) runInit(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	path := filepath.Join(configDir, configFileExt)
	if err := writeConfigIfMissing(path, configFile{
		Backend:  types.BackendSQLite,
		DataDir:  a.flags.dataDir,
		Owner:    a.flags.owner,
		LogLevel: a.flags.logLevel,
	}); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := a.setup(cmd); err != nil {
		return err
	}
	// Attaching applies the schema.
	if _, err := a.service(); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cycles initialized in %s\n", configDir)
	return nil
}

// writeConfigIfMissing creates config.yaml from cfg if the file does not
// exist. An existing file is left alone.
func writeConfigIfMissing(path string, cfg configFile) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
