/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package processor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDescriptor = `package: app
collections:
  teams:
    type: models.Team
    idStrategy: auto
    relations:
      - field: clubId
        targetCollection: clubs
  matches:
    type: models.Match
    hardDelete: true
`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write descriptor: %v", err)
	}
	return path
}

func TestLoadDescriptor(t *testing.T) {
	t.Run("valid descriptor", func(t *testing.T) {
		d, err := LoadDescriptor(writeDescriptor(t, sampleDescriptor))
		if err != nil {
			t.Fatalf("LoadDescriptor: %v", err)
		}
		if d.Package != "app" {
			t.Errorf("package = %q, want app", d.Package)
		}
		if len(d.Collections) != 2 {
			t.Errorf("collections = %d, want 2", len(d.Collections))
		}
		if d.Collections["teams"].Relations[0].TargetCollection != "clubs" {
			t.Errorf("relation = %+v", d.Collections["teams"].Relations[0])
		}
	})

	t.Run("missing package rejected", func(t *testing.T) {
		_, err := LoadDescriptor(writeDescriptor(t, "collections:\n  teams:\n    type: models.Team\n"))
		if err == nil {
			t.Fatal("expected error for missing package")
		}
	})

	t.Run("missing type rejected", func(t *testing.T) {
		_, err := LoadDescriptor(writeDescriptor(t, "package: app\ncollections:\n  teams: {}\n"))
		if err == nil {
			t.Fatal("expected error for missing type")
		}
	})

	t.Run("unknown id strategy rejected", func(t *testing.T) {
		_, err := LoadDescriptor(writeDescriptor(t, "package: app\ncollections:\n  teams:\n    type: models.Team\n    idStrategy: random\n"))
		if err == nil {
			t.Fatal("expected error for unknown idStrategy")
		}
	})

	t.Run("deterministic strategy rejected", func(t *testing.T) {
		_, err := LoadDescriptor(writeDescriptor(t, "package: app\ncollections:\n  teams:\n    type: models.Team\n    idStrategy: deterministic\n"))
		if err == nil {
			t.Fatal("expected error for deterministic strategy")
		}
	})
}

func TestGenerate(t *testing.T) {
	d, err := LoadDescriptor(writeDescriptor(t, sampleDescriptor))
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}

	code, err := Generate(d)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got := string(code)

	for _, want := range []string{
		"package app",
		"Code generated by repokit-gen. DO NOT EDIT.",
		"func RegisterCollections(reg *repokit.Registry) error {",
		"repository.CollectionConfig[models.Team]{",
		`Name:       "teams",`,
		"IDStrategy: repository.IDStrategyAuto,",
		`{Field: "clubId", TargetCollection: "clubs"},`,
		"repository.CollectionConfig[models.Match]{",
		"HardDelete: true,",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("generated code missing %q\n%s", want, got)
		}
	}

	// matches sorts before teams, so regeneration is stable.
	if strings.Index(got, `"matches"`) > strings.Index(got, `"teams"`) {
		t.Error("collections not emitted in name order")
	}
}
