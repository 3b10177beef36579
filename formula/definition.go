package formula

import (
	"encoding/json"
	"strings"

	"github.com/aponysus/bamboo/apierr"
)

// Definition is one entry of a bulk calculation upload.
type Definition struct {
	Name    string   `json:"name" yaml:"name"`
	Formula string   `json:"formula" yaml:"formula"`
	Groups  []string `json:"-" yaml:"groups,omitempty"`
}

type wireDefinition struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
	Group   string `json:"group,omitempty"`
}

// MarshalJSON writes groups as the comma-joined "group" field.
func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDefinition{
		Name:    d.Name,
		Formula: d.Formula,
		Group:   strings.Join(d.Groups, ","),
	})
}

// UnmarshalJSON reads the comma-joined "group" field back into Groups.
func (d *Definition) UnmarshalJSON(b []byte) error {
	var w wireDefinition
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	d.Name, d.Formula, d.Groups = w.Name, w.Formula, nil
	if w.Group != "" {
		d.Groups = strings.Split(w.Group, ",")
	}
	return nil
}

// ValidateDefinitions checks that every entry has a name and a formula.
func ValidateDefinitions(defs []Definition) error {
	if len(defs) == 0 {
		return apierr.Validation("add_calculations", "definitions", "at least one definition is required")
	}
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return apierr.Validation("add_calculations", "name", "definition %d has no name", i)
		}
		if strings.TrimSpace(d.Formula) == "" {
			return apierr.Validation("add_calculations", "formula", "definition %d (%s) has no formula", i, d.Name)
		}
	}
	return nil
}
