// Package templates loads named message bodies and substitutes the
// documented variable context into them.
package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

// Context is the documented set of variables available to every
// template: project name, stage, tick id, derived time fields, and the
// action's own id/channel.
type Context struct {
	ProjectName        string
	Stage               string
	TickID              string
	TimeToDeadlineMin   int
	TimeToDeadlineHours int
	OverdueMin          int
	OverdueHours        int
	ActionID            string
	Channel             string
}

func (c Context) toMap() map[string]string {
	return map[string]string{
		"ProjectName":         c.ProjectName,
		"Stage":               c.Stage,
		"TickID":              c.TickID,
		"TimeToDeadlineMin":   strconv.Itoa(c.TimeToDeadlineMin),
		"TimeToDeadlineHours": strconv.Itoa(c.TimeToDeadlineHours),
		"OverdueMin":          strconv.Itoa(c.OverdueMin),
		"OverdueHours":        strconv.Itoa(c.OverdueHours),
		"ActionID":            c.ActionID,
		"Channel":             c.Channel,
	}
}

// Resolver loads template bodies from a directory and caches the parsed
// result, keyed by file name, in a bounded LRU so a hot template is not
// reparsed every tick.
type Resolver struct {
	dir   string
	cache *lru.Cache[string, *template.Template]
}

// New returns a Resolver reading templates from dir, caching up to
// cacheSize parsed templates.
func New(dir string, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	c, err := lru.New[string, *template.Template](cacheSize)
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonInvalidArgument, "construct template cache", err)
	}
	return &Resolver{dir: dir, cache: c}, nil
}

// Resolve loads the named template (relative to the resolver's root)
// and substitutes ctx into it. Missing variables render as empty
// strings rather than failing the substitution.
func (r *Resolver) Resolve(name string, ctx Context) (string, error) {
	tmpl, err := r.load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Option("missingkey=zero").Execute(&buf, ctx.toMap()); err != nil {
		return "", coerrors.Wrap(coerrors.ReasonInvalidArgument, "render template "+name, err)
	}
	return buf.String(), nil
}

func (r *Resolver) load(name string) (*template.Template, error) {
	if t, ok := r.cache.Get(name); ok {
		return t, nil
	}
	raw, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonInvalidArgument, "read template "+name, err)
	}
	t, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonInvalidArgument, "parse template "+name, err)
	}
	r.cache.Add(name, t)
	return t, nil
}
