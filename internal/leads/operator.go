package leads

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MainOperator is the canonical id for the general (not operator-specific) page.
const MainOperator = "main"

// defaultAliases maps display names and known aliases to canonical ids.
var defaultAliases = map[string]string{
	"SulAmérica":            "sulamerica",
	"Sul América":           "sulamerica",
	"sulamerica":            "sulamerica",
	"Amil":                  "amil",
	"Bradesco Saúde":        "bradesco",
	"Bradesco":              "bradesco",
	"Unimed":                "unimed",
	"NotreDame Intermédica": "notredame_intermedica",
	"Intermédica":           "notredame_intermedica",
	"Porto Seguro":          "porto_seguro",
	"Porto Saúde":           "porto_seguro",
	"Hapvida":               "hapvida",
	"Prevent Senior":        "prevent_senior",
	"Golden Cross":          "golden_cross",
	"MedSênior":             "medsenior",
	"Alice":                 "alice",
	"principal":             MainOperator,
	"geral":                 MainOperator,
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalizer maps operator display names to canonical storage ids.
type Normalizer struct {
	exact  map[string]string
	folded map[string]string
}

// NewNormalizer builds a normalizer from the built-in table plus extra
// aliases. Extra entries win over built-in ones.
func NewNormalizer(extra map[string]string) *Normalizer {
	n := &Normalizer{
		exact:  make(map[string]string, len(defaultAliases)+len(extra)),
		folded: make(map[string]string, len(defaultAliases)+len(extra)),
	}
	for alias, id := range defaultAliases {
		n.add(alias, id)
	}
	for alias, id := range extra {
		n.add(alias, id)
	}
	return n
}

func (n *Normalizer) add(alias, id string) {
	alias = strings.TrimSpace(alias)
	id = strings.TrimSpace(id)
	if alias == "" || id == "" {
		return
	}
	n.exact[alias] = id
	n.folded[strings.ToLower(alias)] = id
}

// Normalize returns the canonical id for display. Unknown names fall back to
// the lower-cased input with whitespace runs replaced by underscores; storage
// may still reject such ids.
func (n *Normalizer) Normalize(display string) string {
	trimmed := strings.TrimSpace(display)
	if id, ok := n.exact[trimmed]; ok {
		return id
	}
	if id, ok := n.folded[strings.ToLower(trimmed)]; ok {
		return id
	}
	return whitespaceRun.ReplaceAllString(strings.ToLower(trimmed), "_")
}

// Known reports whether display resolves through the alias table.
func (n *Normalizer) Known(display string) bool {
	trimmed := strings.TrimSpace(display)
	if _, ok := n.exact[trimmed]; ok {
		return true
	}
	_, ok := n.folded[strings.ToLower(trimmed)]
	return ok
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize resolves display with the built-in alias table.
func Normalize(display string) string {
	return defaultNormalizer.Normalize(display)
}

// aliasFile is the on-disk shape of OPERATOR_ALIASES_FILE:
//
//	aliases:
//	  "Seguros Unimed": unimed
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads extra operator aliases from a YAML file.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leads: read aliases: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("leads: parse aliases: %w", err)
	}
	return f.Aliases, nil
}
