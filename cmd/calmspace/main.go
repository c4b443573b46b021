// Package main provides the calmspace CLI application.
//
// Calmspace is a personal wellness tracker: profile, theme, mood,
// journal, practice streak and guided session logs in a local store, plus
// an offline cache that serves the web app shell without a network.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// version is set during build time.
var version = "dev"

// stdout receives command output.
var stdout io.Writer = os.Stdout

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run(args []string) error {
	fs := flag.NewFlagSet("calmspace", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "calmspace %s\n", version)
		return nil
	}

	args = fs.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "profile":
		return (&profileCommand{configPath: *configPath}).Execute(rest)
	case "theme":
		return (&themeCommand{configPath: *configPath}).Execute(rest)
	case "mood":
		return (&moodCommand{configPath: *configPath}).Execute(rest)
	case "journal":
		return (&journalCommand{configPath: *configPath}).Execute(rest)
	case "usage":
		return (&usageCommand{configPath: *configPath}).Execute(rest)
	case "session":
		return (&sessionCommand{configPath: *configPath}).Execute(rest)
	case "progress":
		return runProgressCommand(*configPath, rest)
	case "backup":
		return (&backupCommand{configPath: *configPath}).Execute(rest)
	case "cache":
		return (&cacheCommand{configPath: *configPath}).Execute(rest)
	case "serve":
		return runServeCommand(*configPath, rest)
	case "logout":
		return runLogoutCommand(*configPath, rest)
	case "config":
		return (&configCommand{configPath: *configPath}).Execute(rest)
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// showUsage displays usage information.
func showUsage() error {
	usage := `Calmspace - personal wellness tracker with an offline app shell

Usage:
  calmspace [flags] <command> [subcommand] [command flags]

Commands:
  profile     Show or save the user profile (show, save)
  theme       Color theme (show, set, toggle)
  mood        Daily mood (set, show)
  journal     Journal text (show, save)
  usage       Practice days (record, show)
  session     Guided sessions (log, list, run)
  progress    Progress report
  backup      Export or import all data (export, import)
  cache       Offline cache (install, activate, list, fetch)
  serve       Serve the API and the cached app shell
  logout      Delete all stored data
  config      Configuration management (show, path, reset)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Examples:
  # Record today's mood
  calmspace mood set 4

  # Run a two minute breathing session
  calmspace session run breathing

  # Show the progress report as JSON
  calmspace progress -format json

  # Export everything
  calmspace backup export -o calmspace-backup.json

  # Install the manifest's assets and serve them
  calmspace cache install
  calmspace serve -watch

Version: %s
`

	fmt.Fprintf(stdout, usage, version)
	return nil
}
