package secrets

import (
	"sort"
	"strings"

	logx "satrunner/pkg/logx"
)

// Presence is one line of the diagnostic report. It never carries a value.
type Presence struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Present  bool   `json:"present"`
}

// Diagnose reports which declared names resolved. Empty values count as absent.
// It is advisory: callers log the result and carry on.
func (s *Set) Diagnose() []Presence {
	out := make([]Presence, 0, len(s.decl.Required)+len(s.decl.Optional))
	add := func(names []string, required bool) {
		for _, n := range names {
			v, ok := s.values[n]
			out = append(out, Presence{Name: n, Required: required, Present: ok && v != ""})
		}
	}
	add(s.decl.Required, true)
	add(s.decl.Optional, false)
	return out
}

// LogDiagnosis writes the report, one line per name.
func LogDiagnosis(log logx.Logger, report []Presence) {
	missing := 0
	for _, p := range report {
		state := "present"
		if !p.Present {
			state = "absent"
			if p.Required {
				missing++
			}
		}
		log.Info("secret check", logx.String("name", p.Name), logx.Bool("required", p.Required), logx.String("state", state))
	}
	if missing > 0 {
		log.Warn("required secrets absent", logx.Int("count", missing))
	}
}

// Masker hides secret values in text.
type Masker struct {
	r      *strings.Replacer
	maxLen int
}

// NewMasker replaces every value of at least minLen bytes with "***".
// Longer values are replaced first so a value that contains another is fully hidden.
func NewMasker(values []string, minLen int) *Masker {
	uniq := map[string]struct{}{}
	for _, v := range values {
		if len(v) >= minLen && v != "" {
			uniq[v] = struct{}{}
		}
	}
	if len(uniq) == 0 {
		return &Masker{}
	}
	vs := make([]string, 0, len(uniq))
	for v := range uniq {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool {
		if len(vs[i]) != len(vs[j]) {
			return len(vs[i]) > len(vs[j])
		}
		return vs[i] < vs[j]
	})
	pairs := make([]string, 0, 2*len(vs))
	for _, v := range vs {
		pairs = append(pairs, v, "***")
	}
	return &Masker{r: strings.NewReplacer(pairs...), maxLen: len(vs[0])}
}

// MaxLen is the length of the longest masked value, 0 when nothing is masked.
func (m *Masker) MaxLen() int {
	if m == nil {
		return 0
	}
	return m.maxLen
}

func (m *Masker) Mask(s string) string {
	if m == nil || m.r == nil {
		return s
	}
	return m.r.Replace(s)
}
