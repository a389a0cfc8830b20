package text2sql

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed areas.yaml
var defaultAreasYAML []byte

// Area is a named neighbourhood with the spellings users type for it.
type Area struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type areasFile struct {
	Areas []Area `yaml:"areas"`
}

// Areas resolves free text to known area names.
type Areas struct {
	list    []Area
	byAlias map[string]string
	re      *regexp.Regexp
}

// DefaultAreas returns the built-in area list.
func DefaultAreas() *Areas {
	a, err := ParseAreas(defaultAreasYAML)
	if err != nil {
		panic(fmt.Sprintf("text2sql: embedded areas.yaml: %v", err))
	}
	return a
}

// LoadAreas reads an area list from a YAML file. An empty path yields the
// built-in list.
func LoadAreas(path string) (*Areas, error) {
	if path == "" {
		return DefaultAreas(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading areas file: %w", err)
	}
	a, err := ParseAreas(data)
	if err != nil {
		return nil, fmt.Errorf("parsing areas file %s: %w", path, err)
	}
	return a, nil
}

// ParseAreas decodes YAML area data.
func ParseAreas(data []byte) (*Areas, error) {
	var f areasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return NewAreas(f.Areas)
}

// NewAreas indexes the given areas. Each area's name is also one of its
// aliases.
func NewAreas(list []Area) (*Areas, error) {
	a := &Areas{list: list, byAlias: make(map[string]string)}
	var aliases []string
	for _, area := range list {
		if strings.TrimSpace(area.Name) == "" {
			return nil, fmt.Errorf("area with empty name")
		}
		for _, alias := range append([]string{area.Name}, area.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				continue
			}
			if _, dup := a.byAlias[key]; dup {
				continue
			}
			a.byAlias[key] = area.Name
			aliases = append(aliases, key)
		}
	}
	if len(aliases) == 0 {
		return a, nil
	}
	// Longest first so "petaling jaya" wins over "jaya".
	sort.SliceStable(aliases, func(i, j int) bool { return len(aliases[i]) > len(aliases[j]) })
	quoted := make([]string, len(aliases))
	for i, s := range aliases {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(s), " ", `\s+`)
	}
	a.re = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	return a, nil
}

// Find returns the first area mentioned in text along with the alias as it
// was written.
func (a *Areas) Find(text string) (name, alias string, ok bool) {
	if a == nil || a.re == nil {
		return "", "", false
	}
	lower := strings.ToLower(text)
	m := a.re.FindString(lower)
	if m == "" {
		return "", "", false
	}
	key := strings.Join(strings.Fields(m), " ")
	return a.byAlias[key], m, true
}

// Canonical maps an alias to its area name. Unknown input is returned as is.
func (a *Areas) Canonical(s string) string {
	if a == nil {
		return s
	}
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if name, ok := a.byAlias[key]; ok {
		return name
	}
	return s
}

// Names lists the configured area names in file order.
func (a *Areas) Names() []string {
	if a == nil {
		return nil
	}
	names := make([]string, len(a.list))
	for i, area := range a.list {
		names[i] = area.Name
	}
	return names
}
