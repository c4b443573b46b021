package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/0xmhha/calmspace/pkg/backup"
	"github.com/0xmhha/calmspace/pkg/collection"
	"github.com/0xmhha/calmspace/pkg/progress"
)

// profileCommand shows and saves the user profile.
type profileCommand struct {
	configPath string
}

// Execute runs the profile command with given arguments.
func (c *profileCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.runShow(nil)
	}

	switch args[0] {
	case "show":
		return c.runShow(args[1:])
	case "save":
		return c.runSave(args[1:])
	default:
		return fmt.Errorf("unknown profile subcommand: %s", args[0])
	}
}

func (c *profileCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("profile show", flag.ContinueOnError)
	format := fs.String("format", "simple", "output format (simple, json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.acc.Profile()
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(stdout, "No profile saved")
		return nil
	}

	if *format == "json" {
		return writeJSON(p)
	}

	fmt.Fprintf(stdout, "Name:   %s\n", p.Name)
	fmt.Fprintf(stdout, "Email:  %s\n", p.Email)
	fmt.Fprintf(stdout, "Born:   %s\n", p.DOB)
	if p.Avatar != "" {
		fmt.Fprintf(stdout, "Avatar: %d bytes\n", len(p.Avatar))
	}
	return nil
}

// runSave replaces the whole profile; omitted flags become empty.
func (c *profileCommand) runSave(args []string) error {
	fs := flag.NewFlagSet("profile save", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	avatar := fs.String("avatar", "", "path to an avatar image")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p := collection.Profile{Name: *name, Email: *email, DOB: *dob}
	if *avatar != "" {
		dataURL, err := avatarDataURL(*avatar)
		if err != nil {
			return err
		}
		p.Avatar = dataURL
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.acc.SaveProfile(p); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Profile saved")
	return nil
}

// avatarDataURL inlines an image file as a data URL.
func avatarDataURL(path string) (string, error) {
	data, err := os.ReadFile(path) // nolint:gosec // user-supplied path
	if err != nil {
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}

	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if !strings.HasPrefix(ctype, "image/") {
		return "", fmt.Errorf("avatar %s is not an image (%s)", path, ctype)
	}

	return "data:" + ctype + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// themeCommand reads and changes the color theme.
type themeCommand struct {
	configPath string
}

// Execute runs the theme command with given arguments.
func (c *themeCommand) Execute(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	var theme collection.Theme
	switch sub {
	case "show":
		theme, err = a.acc.Theme()
	case "toggle":
		theme, err = a.acc.ToggleTheme()
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: calmspace theme set <light|dark>")
		}
		theme = collection.Theme(args[1])
		err = a.acc.SetTheme(theme)
	default:
		return fmt.Errorf("unknown theme subcommand: %s", sub)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, theme)
	return nil
}

// moodCommand records and lists daily moods.
type moodCommand struct {
	configPath string
}

// Execute runs the mood command with given arguments.
func (c *moodCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.runShow(nil)
	}

	switch args[0] {
	case "set":
		return c.runSet(args[1:])
	case "show":
		return c.runShow(args[1:])
	default:
		return fmt.Errorf("unknown mood subcommand: %s", args[0])
	}
}

func (c *moodCommand) runSet(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: calmspace mood set <1-5>")
	}
	score, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %q", collection.ErrInvalidMood, args[0])
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.acc.SetMood(score); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Mood for %s: %d\n", a.acc.Today(), score)
	fmt.Fprintln(stdout, progress.GuidedMessage(score))
	return nil
}

func (c *moodCommand) runShow(args []string) error {
	fs := flag.NewFlagSet("mood show", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := formatter(*format, false)
	if err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.acc.MoodEntries()
	if err != nil {
		return err
	}
	return f.FormatMoods(stdout, entries)
}

// journalCommand reads and writes the journal.
type journalCommand struct {
	configPath string
}

// Execute runs the journal command with given arguments.
func (c *journalCommand) Execute(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		return c.runShow()
	case "save":
		return c.runSave(args[1:])
	default:
		return fmt.Errorf("unknown journal subcommand: %s", sub)
	}
}

func (c *journalCommand) runShow() error {
	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	text, err := a.acc.Journal()
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(stdout)
	}
	return nil
}

// runSave replaces the journal with the arguments, or with stdin when
// none are given.
func (c *journalCommand) runSave(args []string) error {
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read journal: %w", err)
		}
		text = string(data)
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.acc.SaveJournal(text); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Journal saved")
	return nil
}

// usageCommand records and lists practice days.
type usageCommand struct {
	configPath string
}

// Execute runs the usage command with given arguments.
func (c *usageCommand) Execute(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	switch sub {
	case "record":
		reached, err := a.recorder.RecordUsage()
		if err != nil {
			return err
		}
		streak, err := a.recorder.Streak()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Practiced on %s (%d %s total)\n", a.acc.Today(), streak, days(streak))
		printMilestones(reached)
		return nil
	case "show":
		log, err := a.acc.UsageLog()
		if err != nil {
			return err
		}
		for _, day := range log {
			fmt.Fprintln(stdout, day)
		}
		fmt.Fprintf(stdout, "%d %s practiced\n", len(log), days(len(log)))
		return nil
	default:
		return fmt.Errorf("unknown usage subcommand: %s", sub)
	}
}

func days(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

func printMilestones(reached []int) {
	for _, m := range reached {
		fmt.Fprintf(stdout, "Milestone reached: %d %s of practice!\n", m, days(m))
	}
}

// runProgressCommand prints the progress report.
func runProgressCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("progress", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, json, simple)")
	compact := fs.Bool("compact", false, "compact output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := formatter(*format, *compact)
	if err != nil {
		return err
	}

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.recorder.Summary()
	if err != nil {
		return err
	}
	return f.FormatReport(stdout, report)
}

// backupCommand exports and imports the whole store.
type backupCommand struct {
	configPath string
}

// Execute runs the backup command with given arguments.
func (c *backupCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: calmspace backup <export|import> [flags]")
	}

	switch args[0] {
	case "export":
		return c.runExport(args[1:])
	case "import":
		return c.runImport(args[1:])
	default:
		return fmt.Errorf("unknown backup subcommand: %s", args[0])
	}
}

func (c *backupCommand) runExport(args []string) error {
	fs := flag.NewFlagSet("backup export", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := backup.Export(a.store)
	if err != nil {
		return err
	}

	if *output == "" {
		return backup.Encode(stdout, doc)
	}
	if err := backup.WriteFile(*output, doc); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported %d keys to %s\n", doc.Len(), *output)
	return nil
}

func (c *backupCommand) runImport(args []string) error {
	fs := flag.NewFlagSet("backup import", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: calmspace backup import [-force] <file>")
	}

	if !*force && !confirm("Imported keys overwrite stored values. Continue?") {
		fmt.Fprintln(stdout, "Import cancelled")
		return nil
	}

	a, err := openApp(c.configPath)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := backup.ReadFile(a.store, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Imported %d keys\n", doc.Len())
	return nil
}

// runLogoutCommand deletes every stored key.
func runLogoutCommand(configPath string, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force && !confirm("Delete all calmspace data?") {
		fmt.Fprintln(stdout, "Logout cancelled")
		return nil
	}

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.acc.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "All data deleted")
	return nil
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
