package probe

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dashprobe/dashprobe/internal/config"
	"github.com/dashprobe/dashprobe/internal/query"
)

// Plan is an ordered set of checks to run against one backend. Results of
// a run keep the order of the plan.
type Plan struct {
	Tables        []string            `yaml:"tables" json:"tables"`
	Columns       []ColumnCheck       `yaml:"columns" json:"columns"`
	Relationships []RelationshipCheck `yaml:"relationships" json:"relationships"`
	Duplicates    []DuplicateCheck    `yaml:"duplicates" json:"duplicates"`
}

// ColumnCheck expects table to carry every one of Columns.
type ColumnCheck struct {
	Table   string   `yaml:"table" json:"table"`
	Columns []string `yaml:"columns" json:"columns"`
}

// RelationshipCheck expects Child.ForeignKey to resolve into Parent.
type RelationshipCheck struct {
	Parent     string `yaml:"parent" json:"parent"`
	Child      string `yaml:"child" json:"child"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
}

// DuplicateCheck expects at most one row of Table with Column = Value.
type DuplicateCheck struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

// ErrEmptyPlan is returned by Validate for a plan without checks.
var ErrEmptyPlan = errors.New("plan has no checks")

// LoadPlan reads a YAML plan file. Environment variables referenced as
// ${VAR_NAME} in the file's string fields are expanded after decoding.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	plan, err := decodePlan(data)
	if err != nil {
		return nil, err
	}
	plan.expandEnv()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// ParsePlan parses and validates a YAML (or JSON) plan. The text is taken
// literally: plans arriving over the network never see the environment.
func ParsePlan(data []byte) (*Plan, error) {
	plan, err := decodePlan(data)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func decodePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &plan, nil
}

func (p *Plan) expandEnv() {
	for i := range p.Tables {
		p.Tables[i] = config.ExpandEnv(p.Tables[i])
	}
	for i := range p.Columns {
		c := &p.Columns[i]
		c.Table = config.ExpandEnv(c.Table)
		for j := range c.Columns {
			c.Columns[j] = config.ExpandEnv(c.Columns[j])
		}
	}
	for i := range p.Relationships {
		r := &p.Relationships[i]
		r.Parent = config.ExpandEnv(r.Parent)
		r.Child = config.ExpandEnv(r.Child)
		r.ForeignKey = config.ExpandEnv(r.ForeignKey)
	}
	for i := range p.Duplicates {
		d := &p.Duplicates[i]
		d.Table = config.ExpandEnv(d.Table)
		d.Column = config.ExpandEnv(d.Column)
		d.Value = config.ExpandEnv(d.Value)
	}
}

// Size returns the number of checks in the plan.
func (p *Plan) Size() int {
	return len(p.Tables) + len(p.Columns) + len(p.Relationships) + len(p.Duplicates)
}

// Validate rejects empty plans and invalid identifiers. All problems are
// reported together.
func (p *Plan) Validate() error {
	if p.Size() == 0 {
		return ErrEmptyPlan
	}

	var errs []error
	for i, t := range p.Tables {
		if err := query.ValidateIdentifier(t); err != nil {
			errs = append(errs, fmt.Errorf("tables[%d]: %w", i, err))
		}
	}
	for i, c := range p.Columns {
		if len(c.Columns) == 0 {
			errs = append(errs, fmt.Errorf("columns[%d]: no columns listed for %q", i, c.Table))
		}
		if err := query.ValidateIdentifiers(append([]string{c.Table}, c.Columns...)...); err != nil {
			errs = append(errs, fmt.Errorf("columns[%d]: %w", i, err))
		}
	}
	for i, r := range p.Relationships {
		if err := query.ValidateIdentifiers(r.Parent, r.Child, r.ForeignKey); err != nil {
			errs = append(errs, fmt.Errorf("relationships[%d]: %w", i, err))
		}
	}
	for i, d := range p.Duplicates {
		if err := query.ValidateIdentifiers(d.Table, d.Column); err != nil {
			errs = append(errs, fmt.Errorf("duplicates[%d]: %w", i, err))
		}
		if _, err := query.SanitizeValue(d.Value); err != nil {
			errs = append(errs, fmt.Errorf("duplicates[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
