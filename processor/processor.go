/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Descriptor is the root of a collection descriptor file.
type Descriptor struct {
	// Package is the Go package the generated file belongs to.
	Package string `yaml:"package"`

	// Collections maps collection names to their settings.
	Collections map[string]Collection `yaml:"collections"`
}

// Collection describes one collection to register.
type Collection struct {
	// Type is the Go type stored in the collection, e.g. "models.Team".
	Type string `yaml:"type"`

	// IDStrategy is auto, client-supplied or deterministic (default auto).
	IDStrategy string `yaml:"idStrategy"`

	// HardDelete makes Delete remove records permanently.
	HardDelete bool `yaml:"hardDelete"`

	// Relations lists foreign-key fields to expand on Populate.
	Relations []Relation `yaml:"relations"`
}

// Relation describes one expandable reference field.
type Relation struct {
	Field            string `yaml:"field"`
	TargetCollection string `yaml:"targetCollection"`
	LocalKey         string `yaml:"localKey"`
	ForeignKey       string `yaml:"foreignKey"`
}

var validStrategies = map[string]string{
	"":                "IDStrategyAuto",
	"auto":            "IDStrategyAuto",
	"client-supplied": "IDStrategyClient",
	"deterministic":   "IDStrategyDeterministic",
}

// LoadDescriptor parses and validates a descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Descriptor) validate() error {
	if d.Package == "" {
		return fmt.Errorf("descriptor missing package")
	}
	if len(d.Collections) == 0 {
		return fmt.Errorf("descriptor has no collections")
	}
	for name, c := range d.Collections {
		if c.Type == "" {
			return fmt.Errorf("collection %q missing type", name)
		}
		if _, ok := validStrategies[c.IDStrategy]; !ok {
			return fmt.Errorf("collection %q has unknown idStrategy %q", name, c.IDStrategy)
		}
		if c.IDStrategy == "deterministic" {
			return fmt.Errorf("collection %q: deterministic ids need an IDFunc, register it in code", name)
		}
		for _, r := range c.Relations {
			if r.Field == "" || r.TargetCollection == "" {
				return fmt.Errorf("collection %q has a relation missing field or targetCollection", name)
			}
		}
	}
	return nil
}

const fileTemplate = `// Code generated by repokit-gen. DO NOT EDIT.

package {{.Package}}

import (
	"github.com/suparena/repokit"
	"github.com/suparena/repokit/repository"
)

// RegisterCollections builds and registers a repository for every
// collection in the descriptor.
func RegisterCollections(reg *repokit.Registry) error {
{{- range .Collections}}
	if _, err := repokit.NewRepository(reg, repository.CollectionConfig[{{.Type}}]{
		Name:       {{printf "%q" .Name}},
		IDStrategy: repository.{{.Strategy}},
{{- if .HardDelete}}
		HardDelete: true,
{{- end}}
{{- if .Relations}}
		Relations: []repository.RelationDescriptor{
{{- range .Relations}}
			{Field: {{printf "%q" .Field}}, TargetCollection: {{printf "%q" .TargetCollection}}{{if .LocalKey}}, LocalKey: {{printf "%q" .LocalKey}}{{end}}{{if .ForeignKey}}, ForeignKey: {{printf "%q" .ForeignKey}}{{end}}},
{{- end}}
		},
{{- end}}
	}); err != nil {
		return err
	}
{{- end}}
	return nil
}
`

type templateCollection struct {
	Name       string
	Type       string
	Strategy   string
	HardDelete bool
	Relations  []Relation
}

// Generate renders the registration file for a descriptor. Collections
// are emitted in name order so regeneration is deterministic.
func Generate(d *Descriptor) ([]byte, error) {
	names := make([]string, 0, len(d.Collections))
	for name := range d.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]templateCollection, 0, len(names))
	for _, name := range names {
		c := d.Collections[name]
		cols = append(cols, templateCollection{
			Name:       name,
			Type:       c.Type,
			Strategy:   validStrategies[c.IDStrategy],
			HardDelete: c.HardDelete,
			Relations:  c.Relations,
		})
	}

	tmpl, err := template.New("registrations").Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, map[string]any{
		"Package":     d.Package,
		"Collections": cols,
	}); err != nil {
		return nil, fmt.Errorf("render registrations: %w", err)
	}
	return []byte(buf.String()), nil
}

// Main is the entry point used by the repokit-gen command.
func Main() {
	input := flag.String("input", "", "Collection descriptor YAML file")
	output := flag.String("output", "", "Generated Go file (default stdout)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "repokit-gen: -input is required")
		flag.Usage()
		os.Exit(2)
	}

	d, err := LoadDescriptor(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repokit-gen: %v\n", err)
		os.Exit(1)
	}

	code, err := Generate(d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repokit-gen: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		fmt.Print(string(code))
		return
	}
	if err := os.WriteFile(*output, code, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "repokit-gen: write output: %v\n", err)
		os.Exit(1)
	}
}
