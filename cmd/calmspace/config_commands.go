package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/0xmhha/calmspace/pkg/config"
	"gopkg.in/yaml.v3"
)

// configCommand handles configuration management subcommands.
type configCommand struct {
	configPath string
}

// Execute runs the config command with given arguments.
func (c *configCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "show":
		return c.runShow(subargs)
	case "path":
		return c.runPath()
	case "reset":
		return c.runReset(subargs)
	case "help":
		return c.showHelp()
	default:
		return fmt.Errorf("unknown config subcommand: %s", subcommand)
	}
}

// runShow displays the current configuration.
func (c *configCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	format := fs.String("format", "yaml", "output format (yaml, json)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.NewLoader(c.configPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch *format {
	case "json":
		return writeJSON(cfg)
	case "yaml":
		return c.showYAML(cfg)
	default:
		return fmt.Errorf("unknown config format: %s", *format)
	}
}

// showYAML displays configuration in YAML format.
func (c *configCommand) showYAML(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintln(stdout, "# Current Configuration")
	fmt.Fprintln(stdout, "# Source:", c.configSource())
	fmt.Fprintln(stdout)
	_, err = stdout.Write(data)
	return err
}

// runPath shows the configuration file search paths.
func (c *configCommand) runPath() error {
	paths := []string{"./calmspace.yaml", config.DefaultConfigPath()}
	if env := os.Getenv(config.EnvConfig); env != "" {
		paths = append([]string{env}, paths...)
	}
	if c.configPath != "" {
		paths = append([]string{c.configPath}, paths...)
	}

	fmt.Fprintln(stdout, "Configuration file search paths (in order of precedence):")
	fmt.Fprintln(stdout)

	for i, p := range paths {
		exists := "not found"
		if _, err := os.Stat(p); err == nil {
			exists = "found"
		}
		fmt.Fprintf(stdout, "  %d. %s [%s]\n", i+1, p, exists)
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Active configuration:", c.configSource())
	return nil
}

// runReset writes the default configuration.
func (c *configCommand) runReset(args []string) error {
	fs := flag.NewFlagSet("config reset", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation prompt")
	output := fs.String("output", "", "output path for config file (default: ~/.config/calmspace/config.yaml)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(outputPath); err == nil && !*force {
		fmt.Fprintf(stdout, "Configuration file already exists at: %s\n", outputPath)
		if !confirm("Overwrite?") {
			fmt.Fprintln(stdout, "Reset cancelled.")
			return nil
		}
	}

	if err := config.Save(config.Default(), outputPath); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Configuration reset to defaults at: %s\n", outputPath)
	return nil
}

// configSource returns the path of the active configuration file.
func (c *configCommand) configSource() string {
	path := config.NewLoader(c.configPath).Path()
	if path == "" {
		return "defaults (no config file found)"
	}
	return path
}

// showHelp displays help for config command.
func (c *configCommand) showHelp() error {
	help := `Config - Configuration management

Usage:
  calmspace config <subcommand> [flags]

Subcommands:
  show      Display current configuration
  path      Show configuration file paths
  reset     Reset configuration to defaults

Show Flags:
  -format   Output format (yaml, json) (default: yaml)

Reset Flags:
  -force    Skip confirmation prompt
  -output   Output path for config file

Environment:
  CALMSPACE_CONFIG, CALMSPACE_DB, CALMSPACE_CACHE_DB, CALMSPACE_MANIFEST,
  CALMSPACE_ORIGIN, CALMSPACE_LOG_LEVEL

Examples:
  # Show current configuration
  calmspace config show

  # Show configuration in JSON format
  calmspace config show -format json

  # Reset configuration to defaults
  calmspace config reset -force
`
	fmt.Fprint(stdout, help)
	return nil
}
