// Package cli turns the raw argument vector into a validated bootstrap configuration.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/rbright/sigview/internal/acquisition"
)

// Action is what the entry point should do after parsing.
type Action int

const (
	ActionRun Action = iota
	ActionHelp
	ActionVersion
)

func (a Action) String() string {
	switch a {
	case ActionRun:
		return "run"
	case ActionHelp:
		return "help"
	case ActionVersion:
		return "version"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ErrTooManyFiles is returned when more than one positional file is given.
var ErrTooManyFiles = errors.New("only one file can be opened")

// Options is the bootstrap configuration. It is returned by value and never
// changed after Parse.
type Options struct {
	Driver          string
	ScanEnabled     bool
	OpenFile        string
	OpenFileFormat  string
	RestoreSessions bool
	LoggingEnabled  bool

	// LogLevel is only meaningful when LogLevelSet is true; it is applied
	// once the acquisition context exists.
	LogLevel    acquisition.LogLevel
	LogLevelSet bool
}

// Parsed is the parser output.
type Parsed struct {
	Options  Options
	Action   Action
	Warnings []string
}

// Parse scans args with getopt_long semantics: short options cluster, options
// and positionals interleave, "--" ends scanning, unknown options are skipped
// with a warning. The first help or version option ends parsing.
func Parse(args []string) (Parsed, error) {
	p := newParser()

	positionals, err := p.scan(args)
	if err != nil {
		// A malformed option falls back to printing usage.
		p.parsed.Warnings = append(p.parsed.Warnings, err.Error())
		p.parsed.Action = ActionHelp
		return p.result(), nil
	}
	if p.parsed.Action != ActionRun {
		return p.result(), nil
	}

	switch len(positionals) {
	case 0:
	case 1:
		p.parsed.Options.OpenFile = positionals[0]
	default:
		return p.result(), ErrTooManyFiles
	}

	return p.result(), nil
}

type parser struct {
	fs     *pflag.FlagSet
	parsed Parsed

	noScan      bool
	clean       bool
	logToStdout bool
}

func newParser() *parser {
	p := &parser{}
	fs := pflag.NewFlagSet("sigview", pflag.ContinueOnError)
	fs.SortFlags = false

	help := fs.VarPF(&actionValue{target: &p.parsed.Action, action: ActionHelp}, "help", "h", "Show help option")
	help.NoOptDefVal = "true"
	help.Hidden = true

	version := fs.VarPF(&actionValue{target: &p.parsed.Action, action: ActionVersion}, "version", "V", "Show release version")
	version.NoOptDefVal = "true"

	fs.VarP(&logLevelValue{parsed: &p.parsed}, "loglevel", "l", "Set acquisition/decoder `level` (0-5)")
	fs.StringVarP(&p.parsed.Options.Driver, "driver", "d", "", "Specify the device `driver` to use")
	fs.BoolVarP(&p.noScan, "no-scan", "D", false, "Don't auto-scan for devices, use -d spec only")
	fs.StringVarP(&p.parsed.Options.OpenFile, "input-file", "i", "", "Load input from `file`")
	fs.StringVarP(&p.parsed.Options.OpenFileFormat, "input-format", "I", "", "Input `format`")
	fs.BoolVarP(&p.clean, "clean", "c", false, "Don't restore previous sessions on startup")
	fs.BoolVarP(&p.logToStdout, "log-to-stdout", "s", false, "Don't use logging, output to stdout instead")

	p.fs = fs
	return p
}

func (p *parser) result() Parsed {
	out := p.parsed
	out.Options.ScanEnabled = !p.noScan
	out.Options.RestoreSessions = !p.clean
	out.Options.LoggingEnabled = !p.logToStdout
	out.Warnings = append([]string(nil), p.parsed.Warnings...)
	return out
}

func (p *parser) scan(args []string) ([]string, error) {
	var positionals []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--":
			return append(positionals, args[i+1:]...), nil

		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg[2:], "=")
			flag := p.fs.Lookup(name)
			if flag == nil {
				p.warnf("unrecognized option '--%s'", name)
				continue
			}
			if takesValue(flag) {
				if !hasValue {
					if i+1 >= len(args) {
						return nil, fmt.Errorf("option '--%s' requires an argument", name)
					}
					i++
					value = args[i]
				}
			} else {
				if hasValue {
					return nil, fmt.Errorf("option '--%s' doesn't allow an argument", name)
				}
				value = flag.NoOptDefVal
			}
			if err := p.set(flag, value); err != nil {
				return nil, err
			}

		case strings.HasPrefix(arg, "-") && arg != "-":
			shorts := arg[1:]
			for j := 0; j < len(shorts); j++ {
				// "-?" is getopt's help alias and has no long form.
				if shorts[j] == '?' {
					if err := p.fs.Set("help", "true"); err != nil {
						return nil, err
					}
					return positionals, nil
				}

				flag := p.fs.ShorthandLookup(shorts[j : j+1])
				if flag == nil {
					p.warnf("invalid option -- '%c'", shorts[j])
					continue
				}
				if !takesValue(flag) {
					if err := p.set(flag, flag.NoOptDefVal); err != nil {
						return nil, err
					}
					if p.parsed.Action != ActionRun {
						return positionals, nil
					}
					continue
				}

				value := shorts[j+1:]
				if value == "" {
					if i+1 >= len(args) {
						return nil, fmt.Errorf("option requires an argument -- '%c'", shorts[j])
					}
					i++
					value = args[i]
				}
				if err := p.set(flag, value); err != nil {
					return nil, err
				}
				break
			}

		default:
			positionals = append(positionals, arg)
		}

		if p.parsed.Action != ActionRun {
			return positionals, nil
		}
	}

	return positionals, nil
}

func (p *parser) set(flag *pflag.Flag, value string) error {
	if err := p.fs.Set(flag.Name, value); err != nil {
		return fmt.Errorf("invalid value %q for --%s: %w", value, flag.Name, err)
	}
	return nil
}

func (p *parser) warnf(format string, args ...any) {
	p.parsed.Warnings = append(p.parsed.Warnings, fmt.Sprintf(format, args...))
}

func takesValue(flag *pflag.Flag) bool {
	return flag.NoOptDefVal == ""
}

// actionValue records the first early-exit action requested.
type actionValue struct {
	target *Action
	action Action
}

func (v *actionValue) String() string { return "false" }
func (v *actionValue) Type() string   { return "bool" }

func (v *actionValue) Set(string) error {
	if *v.target == ActionRun {
		*v.target = v.action
	}
	return nil
}

// logLevelValue rejects out-of-range levels without failing the parse; the
// previous value is kept and a warning recorded.
type logLevelValue struct {
	parsed *Parsed
}

func (v *logLevelValue) String() string {
	if v.parsed == nil || !v.parsed.Options.LogLevelSet {
		return ""
	}
	return fmt.Sprintf("%d", int(v.parsed.Options.LogLevel))
}

func (v *logLevelValue) Type() string { return "int" }

func (v *logLevelValue) Set(raw string) error {
	level, err := acquisition.ParseLogLevel(raw)
	if err != nil {
		v.parsed.Warnings = append(v.parsed.Warnings, "invalid log level spec: "+err.Error())
		return nil
	}
	v.parsed.Options.LogLevel = level
	v.parsed.Options.LogLevelSet = true
	return nil
}

// HelpText renders usage for binaryName.
func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [OPTIONS] [FILE]\n\n", binaryName)
	b.WriteString("Help Options:\n")
	b.WriteString("  -h, -?, --help            Show help option\n\n")
	b.WriteString("Application Options:\n")
	b.WriteString(newParser().fs.FlagUsages())
	return b.String()
}
