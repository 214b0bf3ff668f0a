package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// Config mirrors the optional YAML configuration file. Flags set on
// the command line win over file values.
type Config struct {
	Format   string `yaml:"format"`
	Verbose  bool   `yaml:"verbose"`
	Database string `yaml:"database"`
	Shots    int    `yaml:"shots"`
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the qic CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "qic",
		Short: "qic - quantum instrument compiler",
		Long:  "Compiles experiment descriptions to sequencer programs, runs them and inspects stored results.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ConfigFile != "" {
				loaded, err := LoadConfig(opts.ConfigFile)
				if err != nil {
					return err
				}
				*cfg = *loaded
				// File values only apply where the flag was left alone.
				if !cmd.Flags().Changed("format") && cfg.Format != "" {
					opts.Format = cfg.Format
				}
				if !cmd.Flags().Changed("verbose") && cfg.Verbose {
					opts.Verbose = true
				}
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewDisasmCommand(opts))
	cmd.AddCommand(NewRunCommand(opts, cfg))
	cmd.AddCommand(NewResultsCommand(opts))

	return cmd
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
