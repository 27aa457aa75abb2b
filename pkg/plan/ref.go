package plan

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Ref is the parsed form of a "$stepN.field[.segment]*" placeholder.
//
// The grammar is deliberately strict: a reference must occupy an entire
// string value (no interpolation inside larger strings), a bare field name
// always means the full declared value, and list elements are addressed by
// an explicit numeric segment ("$step1.results.0.title").
type Ref struct {
	StepID int
	Path   []string
}

var refPattern = regexp.MustCompile(`^\$step([0-9]+)((?:\.[A-Za-z0-9_]+)+)$`)

// ParseRef parses s as a variable reference. ok is false when s is not a
// reference at all (plain literal strings are not an error).
func ParseRef(s string) (ref Ref, ok bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return Ref{}, false
	}
	return Ref{StepID: id, Path: strings.Split(m[2][1:], ".")}, true
}

// String renders the reference back in placeholder form.
func (r Ref) String() string {
	return "$step" + strconv.Itoa(r.StepID) + "." + strings.Join(r.Path, ".")
}

// Field returns the top-level output field the reference addresses.
func (r Ref) Field() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[0]
}

// PlacedRef is a reference together with the parameter that carries it.
// Param is a dotted location within the step's parameters map
// (e.g. "query" or "filters.0").
type PlacedRef struct {
	Param string
	Ref   Ref
}

// Refs collects every variable reference in a parameters map, walking nested
// maps and lists. Results are ordered by parameter location for deterministic
// error reporting.
func Refs(params map[string]any) []PlacedRef {
	var out []PlacedRef
	walkRefs("", params, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Param < out[j].Param })
	return out
}

func walkRefs(loc string, v any, out *[]PlacedRef) {
	switch val := v.(type) {
	case string:
		if r, ok := ParseRef(val); ok {
			*out = append(*out, PlacedRef{Param: loc, Ref: r})
		}
	case map[string]any:
		for k, item := range val {
			walkRefs(joinLoc(loc, k), item, out)
		}
	case []any:
		for i, item := range val {
			walkRefs(joinLoc(loc, strconv.Itoa(i)), item, out)
		}
	}
}

func joinLoc(loc, seg string) string {
	if loc == "" {
		return seg
	}
	return loc + "." + seg
}
