// SPDX-License-Identifier: Apache-2.0

package reference

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/allot/pkg/errors"
)

// Document is the YAML/TOML representation of a table. Roles fixes the
// column order; scores for roles an agent does not list are 0.
//
//	roles: [chest, back]
//	agents:
//	  - name: bench press
//	    capacity: 3
//	    scores: {chest: 5}
type Document struct {
	Roles  []string        `yaml:"roles" toml:"roles"`
	Agents []DocumentAgent `yaml:"agents" toml:"agents"`
}

// DocumentAgent is one agent entry of a Document.
type DocumentAgent struct {
	Name     string             `yaml:"name" toml:"name"`
	Capacity int                `yaml:"capacity,omitempty" toml:"capacity,omitempty"`
	Scores   map[string]float64 `yaml:"scores" toml:"scores"`
}

// ParseYAML decodes a YAML document into a Table.
func ParseYAML(data []byte, defaultCapacity int) (*Table, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid yaml reference table", err)
	}
	return doc.Table(defaultCapacity)
}

// ParseTOML decodes a TOML document into a Table.
func ParseTOML(data []byte, defaultCapacity int) (*Table, error) {
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid toml reference table", err)
	}
	return doc.Table(defaultCapacity)
}

// Table converts the document, rejecting scores for undeclared roles.
func (d Document) Table(defaultCapacity int) (*Table, error) {
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}
	col := make(map[string]int, len(d.Roles))
	for j, r := range d.Roles {
		col[r] = j
	}
	agents := make([]string, len(d.Agents))
	values := make([][]float64, len(d.Agents))
	capacity := make([]int, len(d.Agents))
	for i, a := range d.Agents {
		agents[i] = a.Name
		values[i] = make([]float64, len(d.Roles))
		for role, v := range a.Scores {
			j, ok := col[role]
			if !ok {
				return nil, errors.Newf(errors.CodeInvalidInput, "agent %q scores undeclared role %q", a.Name, role)
			}
			values[i][j] = v
		}
		capacity[i] = a.Capacity
		if capacity[i] == 0 {
			capacity[i] = defaultCapacity
		}
	}
	return NewTable(agents, d.Roles, values, capacity)
}

// DocumentOf converts t back into its document form, omitting zero scores.
func DocumentOf(t *Table) Document {
	doc := Document{Roles: t.Roles(), Agents: make([]DocumentAgent, len(t.agents))}
	for i, name := range t.agents {
		scores := make(map[string]float64)
		for j, v := range t.quality.Row(i) {
			if v != 0 {
				scores[t.roles[j]] = v
			}
		}
		doc.Agents[i] = DocumentAgent{Name: name, Capacity: t.capacity[i], Scores: scores}
	}
	return doc
}

// MarshalYAML renders t as a YAML document.
func MarshalYAML(t *Table) ([]byte, error) {
	return yaml.Marshal(DocumentOf(t))
}

// MarshalTOML renders t as a TOML document.
func MarshalTOML(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(DocumentOf(t)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
