// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/schemakit/schemakit/sql/schema"

	"github.com/go-openapi/inflect"
)

type (
	// Dir wraps the functionality used to interact with a migration directory.
	Dir interface {
		fs.FS

		// WriteFile writes the data to the named file.
		WriteFile(string, []byte) error

		// Files returns a set of files stored in this Dir
		// to be executed on a database.
		Files() ([]File, error)
	}

	// File represents a single migration file.
	File interface {
		// Name returns the name of the migration file.
		Name() string

		// Desc returns the description of the migration File.
		Desc() string

		// Version returns the version of the migration File.
		Version() string

		// Bytes returns the read content of the file.
		Bytes() []byte
	}
)

// LocalDir implements Dir for a local migration
// directory with default migration file format.
type LocalDir struct {
	path string
}

// NewLocalDir returns a new the Dir used by a Planner to work on the given
// local path. The provided path must be a valid directory path.
func NewLocalDir(path string) (*LocalDir, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("sql/migrate: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("sql/migrate: %q is not a dir", path)
	}
	return &LocalDir{path: path}, nil
}

// Path returns the local path used for opening this dir.
func (d *LocalDir) Path() string {
	return d.path
}

// Open implements fs.FS.
func (d *LocalDir) Open(name string) (fs.File, error) {
	return os.Open(filepath.Join(d.path, name))
}

// WriteFile implements Dir.WriteFile.
func (d *LocalDir) WriteFile(name string, b []byte) error {
	return os.WriteFile(filepath.Join(d.path, name), b, 0644)
}

// Files implements Dir.Files. It looks for all files with .sql suffix
// and orders them by filename.
func (d *LocalDir) Files() ([]File, error) {
	names, err := fs.Glob(d, "*.sql")
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(names))
	for _, n := range names {
		b, err := fs.ReadFile(d, n)
		if err != nil {
			return nil, fmt.Errorf("sql/migrate: read file %q: %w", n, err)
		}
		files = append(files, NewLocalFile(n, b))
	}
	return files, nil
}

// LocalFile is used by LocalDir to implement the File interface.
type LocalFile struct {
	n string
	b []byte
}

// NewLocalFile returns a new local file.
func NewLocalFile(name string, data []byte) *LocalFile {
	return &LocalFile{n: name, b: data}
}

// Name implements File.Name.
func (f *LocalFile) Name() string {
	return f.n
}

// Desc implements File.Desc.
func (f *LocalFile) Desc() string {
	parts := strings.SplitN(f.n, "_", 2)
	if len(parts) == 1 {
		return ""
	}
	return strings.TrimSuffix(parts[1], ".sql")
}

// Version implements File.Version.
func (f *LocalFile) Version() string {
	return strings.SplitN(strings.TrimSuffix(f.n, ".sql"), "_", 2)[0]
}

// Bytes implements File.Bytes.
func (f *LocalFile) Bytes() []byte {
	return f.b
}

var (
	_ Dir  = (*LocalDir)(nil)
	_ File = (*LocalFile)(nil)
)

type (
	// Formatter wraps the Format method.
	Formatter interface {
		// Format formats the given Plan into one or more migration files.
		Format(*Plan) ([]File, error)
	}

	// TemplateFormatter implements Formatter by using templates.
	TemplateFormatter struct {
		templates []struct{ N, C *template.Template }
	}
)

// NewTemplateFormatter creates a new Formatter working with the given templates.
//
//	migrate.NewTemplateFormatter(
//		template.Must(template.New("").Parse("{{now.Unix}}{{.Name}}.sql")),                 // name template
//		template.Must(template.New("").Parse("{{range .Changes}}{{println .Cmd}}{{end}}")), // content template
//	)
func NewTemplateFormatter(templates ...*template.Template) (*TemplateFormatter, error) {
	if n := len(templates); n == 0 || n%2 == 1 {
		return nil, fmt.Errorf("zero or odd number of templates given: %d", n)
	}
	t := new(TemplateFormatter)
	for i := 0; i < len(templates); i += 2 {
		t.templates = append(t.templates, struct{ N, C *template.Template }{templates[i], templates[i+1]})
	}
	return t, nil
}

// Format implements the Formatter interface.
func (t *TemplateFormatter) Format(plan *Plan) ([]File, error) {
	files := make([]File, 0, len(t.templates))
	for _, tpl := range t.templates {
		var n, b bytes.Buffer
		if err := tpl.N.Execute(&n, plan); err != nil {
			return nil, err
		}
		if err := tpl.C.Execute(&b, plan); err != nil {
			return nil, err
		}
		files = append(files, NewLocalFile(n.String(), b.Bytes()))
	}
	return files, nil
}

// DefaultFormatter is a default implementation for Formatter.
// Each plan is written to a single versioned migration file.
var DefaultFormatter = &TemplateFormatter{
	templates: []struct{ N, C *template.Template }{
		{
			N: template.Must(template.New("").Funcs(funcs).Parse(
				"{{ with .Version }}{{ . }}{{ else }}{{ now }}{{ end }}{{ with .Name }}_{{ underscore . }}{{ end }}.sql",
			)),
			C: template.Must(template.New("").Funcs(funcs).Parse(
				`{{ range .Changes }}{{ with .Comment }}{{ printf "-- %s%s\n" (slice . 0 1 | upper ) (slice . 1) }}{{ end }}{{ printf "%s;\n" .Cmd }}{{ end }}`,
			)),
		},
	},
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	// underscore normalizes plan names to snake_case file names.
	"underscore": inflect.Underscore,
	// now formats the current time in a lexicographically ascending order while maintaining human readability.
	"now": func() string { return time.Now().UTC().Format("20060102150405") },
}

// Planner can plan the steps to take to migrate from one state to another. It uses the enclosed Dir to
// write those changes to versioned migration files.
type Planner struct {
	drv  Driver       // driver to use
	dir  Dir          // where migration files are stored and read from
	fmt  Formatter    // how to format a plan to migration files
	opts []PlanOption // driver options
}

// PlannerOption allows managing a Planner using functional arguments.
type PlannerOption func(*Planner)

// NewPlanner creates a new Planner.
func NewPlanner(drv Driver, dir Dir, opts ...PlannerOption) *Planner {
	p := &Planner{drv: drv, dir: dir, fmt: DefaultFormatter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlanFormat sets the Formatter of a Planner.
func PlanFormat(fmt Formatter) PlannerOption {
	return func(p *Planner) {
		p.fmt = fmt
	}
}

// PlanWithOptions sets the plan options used by the driver.
func PlanWithOptions(opts ...PlanOption) PlannerOption {
	return func(p *Planner) {
		p.opts = append(p.opts, opts...)
	}
}

// Plan calculates the migration Plan required for moving the current
// state (retrieved from the enclosed Driver) to the desired state.
func (p *Planner) Plan(ctx context.Context, name string, to *schema.Schema) (*Plan, error) {
	current, err := p.drv.InspectSchema(ctx, to.Name, nil)
	if err != nil {
		return nil, err
	}
	changes, err := p.drv.SchemaDiff(current, to)
	if err != nil {
		return nil, err
	}
	return p.drv.PlanChanges(ctx, name, changes, p.opts...)
}

// WritePlan writes the given Plan to the Dir based on the configured Formatter.
func (p *Planner) WritePlan(plan *Plan) error {
	files, err := p.fmt.Format(plan)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := p.dir.WriteFile(f.Name(), f.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
