// Package scaffold generates a standalone factory backend project from
// embedded templates.
package scaffold

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/factory_os/internal/cli"
	"github.com/R3E-Network/factory_os/internal/logging"
)

//go:embed all:templates
var templateFS embed.FS

const (
	templateRoot   = "templates/project"
	templateSuffix = ".tmpl"
)

// DefaultCommands run in the generated project after the files are written.
var DefaultCommands = [][]string{{"go", "mod", "tidy"}}

// ErrExists is returned when a target file exists and Force is not set.
var ErrExists = errors.New("file already exists")

// Runner executes a package manager command inside dir.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

// Generator writes a project tree into Dir.
type Generator struct {
	Dir         string
	Force       bool
	SkipInstall bool
	Commands    [][]string
	Runner      Runner
	Printer     *cli.Printer
	Logger      *logging.Logger
}

// Result reports what Generate did.
type Result struct {
	Dir     string
	Created []string
	// InstallErr is the package manager failure, if any. It does not fail
	// the generation.
	InstallErr error
}

// Files lists the paths the generator writes, relative to the target dir.
func Files() ([]string, error) {
	var out []string
	err := fs.WalkDir(templateFS, templateRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(p, templateRoot+"/")
		out = append(out, strings.TrimSuffix(rel, templateSuffix))
		return nil
	})
	sort.Strings(out)
	return out, err
}

// Generate renders every template for m and then runs the package manager.
// Existing files are refused before anything is written unless Force is set.
func (g *Generator) Generate(ctx context.Context, m Manifest) (*Result, error) {
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	printer := g.Printer
	if printer == nil {
		printer = cli.NewPrinter(io.Discard)
	}
	log := g.Logger
	if log == nil {
		log = logging.Discard()
	}

	dir := g.Dir
	if dir == "" {
		dir = m.Name
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve target dir: %w", err)
	}

	files, err := Files()
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	rendered := make(map[string][]byte, len(files))
	for _, rel := range files {
		body, err := render(rel, m)
		if err != nil {
			return nil, err
		}
		rendered[rel] = body
	}

	if !g.Force {
		for _, rel := range files {
			target := filepath.Join(dir, filepath.FromSlash(rel))
			if _, err := os.Stat(target); err == nil {
				return nil, fmt.Errorf("%s: %w (use --force to overwrite)", target, ErrExists)
			}
		}
	}

	printer.Heading("Generating project %s in %s", m.Name, dir)
	res := &Result{Dir: dir}
	for _, rel := range files {
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return res, fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, rendered[rel], 0o644); err != nil {
			return res, fmt.Errorf("write %s: %w", rel, err)
		}
		res.Created = append(res.Created, rel)
		printer.Success("Created: %s", rel)
	}
	log.WithFields(map[string]interface{}{
		"project": m.Name,
		"dir":     dir,
		"files":   len(res.Created),
	}).Info("project generated")

	if !g.SkipInstall {
		res.InstallErr = g.install(ctx, dir, printer)
		if res.InstallErr != nil {
			log.WithError(res.InstallErr).Warn("package manager failed")
		}
	}

	printer.Heading("Quick start:")
	printer.Plain("  cd %s", dir)
	printer.Plain("  go test ./...")
	printer.Plain("  go run .")
	return res, nil
}

func (g *Generator) install(ctx context.Context, dir string, printer *cli.Printer) error {
	commands := g.Commands
	if len(commands) == 0 {
		commands = DefaultCommands
	}
	runner := g.Runner
	if runner == nil {
		runner = ExecRunner{Stdout: io.Discard, Stderr: io.Discard}
	}

	for _, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		line := strings.Join(argv, " ")
		spinner := printer.NewSpinner("Running: " + line)
		spinner.Start()
		if err := runner.Run(ctx, dir, argv[0], argv[1:]...); err != nil {
			spinner.Error("%s failed: %v", line, err)
			printer.Warning("Run these manually inside %s:", dir)
			for _, manual := range commands {
				if len(manual) > 0 {
					printer.Plain("    %s", strings.Join(manual, " "))
				}
			}
			return fmt.Errorf("%s: %w", line, err)
		}
		spinner.Success("%s", line)
	}
	return nil
}

var funcs = template.FuncMap{
	"yaml": func(v any) (string, error) {
		out, err := yaml.Marshal(v)
		return string(out), err
	},
}

func render(rel string, m Manifest) ([]byte, error) {
	name := path.Join(templateRoot, rel+templateSuffix)
	raw, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", rel, err)
	}
	tmpl, err := template.New(rel).Funcs(funcs).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", rel, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, m); err != nil {
		return nil, fmt.Errorf("render %s: %w", rel, err)
	}
	return []byte(buf.String()), nil
}
