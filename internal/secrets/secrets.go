// Package secrets resolves the declared secret environment a run hands to the
// invoked executable.
//
// Only names live in configuration. Values come from the process environment
// and, optionally, from a YAML/JSON secrets file; the environment wins. A Set
// is resolved once per run and dropped when the run ends.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"satrunner/internal/config"
)

// Names the report executable understands. Used when the config declares none.
var (
	DefaultRequired = []string{
		"N2YO_API_KEY",
		"SMTP_SERVER",
		"SMTP_PORT",
		"SMTP_USERNAME",
		"SMTP_PASSWORD",
		"SENDER_EMAIL",
		"RECEIVER_EMAIL",
	}
	DefaultOptional = []string{
		"OBSERVER_LAT",
		"OBSERVER_LNG",
		"OBSERVER_ALT",
		"CATEGORY_ID",
		"SEARCH_RADIUS_DEGREES",
	}
	DefaultPassthrough = []string{"PATH", "HOME", "LANG", "TMPDIR"}
)

var ErrSecretsFile = errors.New("secrets file")

// LookupFunc matches os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Declaration is the fixed list of names a run resolves.
type Declaration struct {
	Required    []string
	Optional    []string
	Passthrough []string
	File        string
}

// FromConfig builds a Declaration, falling back to the defaults for empty lists.
func FromConfig(c config.SecretsConfig) Declaration {
	d := Declaration{
		Required:    trimAll(c.Required),
		Optional:    trimAll(c.Optional),
		Passthrough: trimAll(c.Passthrough),
		File:        strings.TrimSpace(c.File),
	}
	if len(d.Required) == 0 && len(d.Optional) == 0 {
		d.Required = append([]string(nil), DefaultRequired...)
		d.Optional = append([]string(nil), DefaultOptional...)
	}
	if len(d.Passthrough) == 0 {
		d.Passthrough = append([]string(nil), DefaultPassthrough...)
	}
	return d
}

// Names returns required then optional names, in declaration order.
func (d Declaration) Names() []string {
	out := make([]string, 0, len(d.Required)+len(d.Optional))
	out = append(out, d.Required...)
	return append(out, d.Optional...)
}

// Set holds resolved values. Names with no value are absent from the map.
type Set struct {
	decl   Declaration
	values map[string]string
	base   map[string]string
}

// Resolve reads every declared name. Missing names are not an error here;
// Diagnose reports them and the invoked executable decides what to do.
func Resolve(d Declaration, lookup LookupFunc) (*Set, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fileVals := map[string]string{}
	if d.File != "" {
		b, err := os.ReadFile(d.File)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretsFile, err)
		}
		if err := config.DecodeStrict(d.File, b, &fileVals); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSecretsFile, d.File, err)
		}
	}

	s := &Set{decl: d, values: map[string]string{}, base: map[string]string{}}
	for _, name := range d.Names() {
		if v, ok := lookup(name); ok {
			s.values[name] = v
			continue
		}
		if v, ok := fileVals[name]; ok {
			s.values[name] = v
		}
	}
	for _, name := range d.Passthrough {
		if v, ok := lookup(name); ok {
			s.base[name] = v
		}
	}
	return s, nil
}

func (s *Set) Declaration() Declaration { return s.decl }

// Get returns a resolved value.
func (s *Set) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Missing returns declared required names with no value.
func (s *Set) Missing() []string {
	var out []string
	for _, n := range s.decl.Required {
		if _, ok := s.values[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Environ builds the invoked process environment: passthrough host variables
// plus every declared name. A declared name with no value is exported empty.
// Nothing else from the host leaks in.
func (s *Set) Environ() []string {
	merged := make(map[string]string, len(s.base)+len(s.decl.Required)+len(s.decl.Optional))
	for k, v := range s.base {
		merged[k] = v
	}
	for _, k := range s.decl.Names() {
		merged[k] = s.values[k]
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// BaseEnviron is the passthrough part of Environ only. Steps that don't need
// secrets (dependency install, runtime probe) get this.
func (s *Set) BaseEnviron() []string {
	keys := make([]string, 0, len(s.base))
	for k := range s.base {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.base[k])
	}
	return out
}

// Values returns the resolved secret values (not passthrough), for masking.
func (s *Set) Values() []string {
	out := make([]string, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
