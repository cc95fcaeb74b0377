package normalize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntityAlias maps any entity text containing Keyword to the canonical Name.
type EntityAlias struct {
	Keyword string `yaml:"keyword"`
	Name    string `yaml:"name"`
}

// DefaultEntityAliases is the built-in EPS table. Order matters: the first match wins.
var DefaultEntityAliases = []EntityAlias{
	{Keyword: "NUEVA EPS", Name: "Nueva EPS"},
	{Keyword: "ALIANZA", Name: "Alianza"},
	{Keyword: "MUTUAL", Name: "MUTUAL SER"},
	{Keyword: "SANITAS", Name: "SANITAS"},
	{Keyword: "DISPENSARIO", Name: "Dispensario Medico/Medellín"},
	{Keyword: "SALUD TOTAL", Name: "Salud Total"},
}

type aliasFile struct {
	Aliases []EntityAlias `yaml:"aliases"`
}

// LoadEntityAliases reads a replacement alias table from a YAML file of the form
//
//	aliases:
//	  - keyword: NUEVA EPS
//	    name: Nueva EPS
func LoadEntityAliases(path string) ([]EntityAlias, error) {
	const op = "LoadEntityAliases"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", op, path, err)
	}

	var file aliasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", op, path, err)
	}

	for i, alias := range file.Aliases {
		if strings.TrimSpace(alias.Keyword) == "" || strings.TrimSpace(alias.Name) == "" {
			return nil, fmt.Errorf("%s: entry %d needs both keyword and name", op, i+1)
		}
	}
	if len(file.Aliases) == 0 {
		return nil, fmt.Errorf("%s: %s contains no aliases", op, path)
	}

	return file.Aliases, nil
}

// Canonicalize returns the canonical name of the first alias whose keyword appears in entity.
func Canonicalize(entity string, aliases []EntityAlias) string {
	upper := strings.ToUpper(entity)
	for _, alias := range aliases {
		if strings.Contains(upper, strings.ToUpper(alias.Keyword)) {
			return alias.Name
		}
	}
	return entity
}
