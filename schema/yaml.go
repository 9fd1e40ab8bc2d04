package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// memberDoc is the YAML wire form of a Member.
type memberDoc struct {
	Owner         string `yaml:"owner"`
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Strategy      string `yaml:"strategy"`
	Element       string `yaml:"element,omitempty"`
	Key           string `yaml:"key,omitempty"`
	MappedBy      string `yaml:"mapped_by,omitempty"`
	Dependent     bool   `yaml:"dependent,omitempty"`
	Nullable      bool   `yaml:"nullable,omitempty"`
	Indexed       bool   `yaml:"indexed,omitempty"`
	Serialized    bool   `yaml:"serialized,omitempty"`
	Embedded      bool   `yaml:"embedded,omitempty"`
	Table         string `yaml:"table,omitempty"`
	OwnerColumn   string `yaml:"owner_column,omitempty"`
	ElementColumn string `yaml:"element_column,omitempty"`
	KeyColumn     string `yaml:"key_column,omitempty"`
	ValueColumn   string `yaml:"value_column,omitempty"`
	OrderColumn   string `yaml:"order_column,omitempty"`
	Ordering      []struct {
		Field string `yaml:"field"`
		Desc  bool   `yaml:"desc,omitempty"`
	} `yaml:"ordering,omitempty"`
	Discriminator *struct {
		Column string `yaml:"column"`
		Value  string `yaml:"value"`
	} `yaml:"discriminator,omitempty"`
}

type schemaDoc struct {
	Members []memberDoc `yaml:"members"`
}

// Parse decodes a YAML schema document into validated Definitions.
func Parse(data []byte) (*Definitions, error) {
	var doc schemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}
	members := make([]*Member, 0, len(doc.Members))
	for i := range doc.Members {
		m, err := doc.Members[i].member()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return NewDefinitions(members...)
}

// Load decodes a YAML schema document from the given reader.
func Load(r io.Reader) (*Definitions, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("schema: read: %w", err)
	}
	return Parse(data)
}

// LoadFile decodes a YAML schema document from the named file.
func LoadFile(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func (d *memberDoc) member() (*Member, error) {
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(d.Strategy)
	if err != nil {
		return nil, err
	}
	m := &Member{
		Owner:         d.Owner,
		Name:          d.Name,
		Kind:          kind,
		Strategy:      strategy,
		Element:       d.Element,
		Key:           d.Key,
		MappedBy:      d.MappedBy,
		Dependent:     d.Dependent,
		Nullable:      d.Nullable,
		Indexed:       d.Indexed,
		Serialized:    d.Serialized,
		Embedded:      d.Embedded,
		Table:         d.Table,
		OwnerColumn:   d.OwnerColumn,
		ElementColumn: d.ElementColumn,
		KeyColumn:     d.KeyColumn,
		ValueColumn:   d.ValueColumn,
		OrderColumn:   d.OrderColumn,
	}
	for _, o := range d.Ordering {
		m.Ordering = append(m.Ordering, OrderTerm{Field: o.Field, Desc: o.Desc})
	}
	if d.Discriminator != nil {
		m.Discriminator = &Discriminator{Column: d.Discriminator.Column, Value: d.Discriminator.Value}
	}
	return m, nil
}
