package rules

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// Property is a presentation property name in camelCase (e.g. backgroundColor)
type Property string

const (
	PropertyColor           Property = "color"
	PropertyBackgroundColor Property = "backgroundColor"
	PropertyFontWeight      Property = "fontWeight"
	PropertyFontStyle       Property = "fontStyle"
	PropertyTextDecoration  Property = "textDecoration"
)

// Style is an immutable mapping from Property to value. Every method that
// changes a Style returns a new one; the zero value is the empty style.
type Style struct {
	props map[Property]string
}

// NewStyle copies props into a Style. Empty property names are dropped.
func NewStyle(props map[Property]string) Style {
	if len(props) == 0 {
		return Style{}
	}
	cp := make(map[Property]string, len(props))
	for k, v := range props {
		if k == "" {
			continue
		}
		cp[k] = v
	}
	return Style{props: cp}
}

// Get returns the value set for p
func (s Style) Get(p Property) (string, bool) {
	v, ok := s.props[p]
	return v, ok
}

// Len is the number of properties set
func (s Style) Len() int { return len(s.props) }

// IsEmpty reports whether no property is set
func (s Style) IsEmpty() bool { return len(s.props) == 0 }

// With returns a copy of s with p set to value
func (s Style) With(p Property, value string) Style {
	cp := make(map[Property]string, len(s.props)+1)
	maps.Copy(cp, s.props)
	cp[p] = value
	return Style{props: cp}
}

// Properties returns the set property names, sorted
func (s Style) Properties() []Property {
	return slices.Sorted(maps.Keys(s.props))
}

// Map returns a copy of the underlying mapping
func (s Style) Map() map[Property]string {
	cp := make(map[Property]string, len(s.props))
	maps.Copy(cp, s.props)
	return cp
}

// Equal reports structural equality
func (s Style) Equal(o Style) bool {
	return maps.Equal(s.props, o.props)
}

// CSS renders s as an inline declaration list, properties sorted:
// "background-color: #ffed9d; font-weight: bold"
func (s Style) CSS() string {
	decls := make([]string, 0, len(s.props))
	for _, p := range s.Properties() {
		decls = append(decls, fmt.Sprintf("%s: %s", kebab(string(p)), s.props[p]))
	}
	return strings.Join(decls, "; ")
}

func (s Style) String() string {
	return "{" + s.CSS() + "}"
}

// MarshalJSON encodes s as a flat JSON object; the empty style is {}
func (s Style) MarshalJSON() ([]byte, error) {
	if s.props == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.props)
}

// UnmarshalJSON decodes a flat JSON object of string values
func (s *Style) UnmarshalJSON(data []byte) error {
	var props map[Property]string
	if err := json.Unmarshal(data, &props); err != nil {
		return fmt.Errorf("style must be an object of string values: %w", err)
	}
	*s = NewStyle(props)
	return nil
}

// MergeStyles folds styles left to right. Later styles override earlier ones
// property by property; properties a later style does not set survive.
func MergeStyles(styles []Style) Style {
	var merged map[Property]string
	for _, st := range styles {
		if st.IsEmpty() {
			continue
		}
		if merged == nil {
			merged = make(map[Property]string, st.Len())
		}
		maps.Copy(merged, st.props)
	}
	return Style{props: merged}
}

// FontToggle is one of the font decoration buttons of the authoring panel
type FontToggle string

const (
	FontBold          FontToggle = "bold"
	FontItalic        FontToggle = "italic"
	FontUnderline     FontToggle = "underline"
	FontStrikethrough FontToggle = "line-through"
)

// fontToggles is the canonical fold order; with both underline and
// line-through selected, line-through wins.
var fontToggles = []struct {
	toggle FontToggle
	style  Style
}{
	{FontBold, NewStyle(map[Property]string{PropertyFontWeight: "bold"})},
	{FontItalic, NewStyle(map[Property]string{PropertyFontStyle: "italic"})},
	{FontUnderline, NewStyle(map[Property]string{PropertyTextDecoration: "underline"})},
	{FontStrikethrough, NewStyle(map[Property]string{PropertyTextDecoration: "line-through"})},
}

// Valid reports whether t is a known toggle
func (t FontToggle) Valid() bool {
	for _, ft := range fontToggles {
		if ft.toggle == t {
			return true
		}
	}
	return false
}

// FontStyle merges the styles of the selected toggles in canonical order,
// regardless of selection order. Unknown toggles are ignored.
func FontStyle(toggles ...FontToggle) Style {
	var selected []Style
	for _, ft := range fontToggles {
		if slices.Contains(toggles, ft.toggle) {
			selected = append(selected, ft.style)
		}
	}
	return MergeStyles(selected)
}

func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
