// Package template renders the HTML bodies of campaign emails from Liquid
// templates stored on disk.
package template

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
)

// ErrTemplate matches every rendering failure via errors.Is.
var ErrTemplate = errors.New("template error")

// Error describes a template that could not be loaded, parsed or rendered.
type Error struct {
	Name string
	Op   string // "load", "parse" or "render"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("template %q: %s: %v", e.Name, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrTemplate.
func (e *Error) Is(target error) bool { return target == ErrTemplate }

type cachedTemplate struct {
	modTime time.Time
	size    int64
	tpl     *liquid.Template
}

// Renderer loads templates from a single directory. Parsed templates are
// cached and reparsed when the file changes on disk. Safe for concurrent use.
type Renderer struct {
	dir    string
	engine *liquid.Engine
	cache  sync.Map // name -> *cachedTemplate
}

// NewRenderer creates a renderer rooted at dir.
func NewRenderer(dir string) *Renderer {
	r := &Renderer{dir: dir, engine: liquid.NewEngine()}
	registerFilters(r.engine)
	return r
}

// Dir returns the template directory.
func (r *Renderer) Dir() string { return r.dir }

// Render renders the template file name with data. Values are HTML-escaped
// before binding. name must be a bare file name inside the renderer's
// directory.
func (r *Renderer) Render(name string, data map[string]string) (string, error) {
	tpl, err := r.load(name)
	if err != nil {
		return "", err
	}

	bindings := make(liquid.Bindings, len(data))
	for k, v := range data {
		bindings[k] = html.EscapeString(v)
	}

	out, serr := tpl.RenderString(bindings)
	if serr != nil {
		return "", &Error{Name: name, Op: "render", Err: serr}
	}
	return out, nil
}

func (r *Renderer) load(name string) (*liquid.Template, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, '\\') {
		return nil, &Error{Name: name, Op: "load", Err: errors.New("invalid template name")}
	}
	path := filepath.Join(r.dir, name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Name: name, Op: "load", Err: err}
	}
	if info.IsDir() {
		return nil, &Error{Name: name, Op: "load", Err: errors.New("is a directory")}
	}

	if v, ok := r.cache.Load(name); ok {
		c := v.(*cachedTemplate)
		if c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
			return c.tpl, nil
		}
	}

	src, err := os.ReadFile(path)
	if err != nil {
		r.cache.Delete(name)
		return nil, &Error{Name: name, Op: "load", Err: err}
	}
	tpl, serr := r.engine.ParseTemplate(src)
	if serr != nil {
		r.cache.Delete(name)
		return nil, &Error{Name: name, Op: "parse", Err: serr}
	}
	r.cache.Store(name, &cachedTemplate{modTime: info.ModTime(), size: info.Size(), tpl: tpl})
	return tpl, nil
}

// List returns the *.html template names in the directory, sorted. A missing
// directory yields an empty list.
func (r *Renderer) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", r.dir, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Has reports whether name is one of the listed templates.
func (r *Renderer) Has(name string) bool {
	names, err := r.List()
	if err != nil {
		return false
	}
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}
