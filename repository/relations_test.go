/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store/mock"
)

func clubDoc(id, name, city string) storagemodels.Document {
	d := teamDoc(id, 1, nil)
	d["name"] = name
	d["city"] = city
	return d
}

func withClubRelations() func(*CollectionConfig[team]) {
	return func(cfg *CollectionConfig[team]) {
		cfg.Relations = []RelationDescriptor{
			{Field: "club", TargetCollection: "clubs", LocalKey: "clubId"},
			{Field: "sponsor", TargetCollection: "sponsors", LocalKey: "id", ForeignKey: "teamId"},
		}
	}
}

func TestPopulate(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves local key by point read", func(t *testing.T) {
		st := mock.New().
			Seed("teams", teamDoc("t-1", 1, map[string]any{"clubId": "c-1"})).
			Seed("clubs", clubDoc("c-1", "North FC", "Toronto"))
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec, "club")

		club, ok := rec.Related["club"]
		if !ok {
			t.Fatal("club relation not populated")
		}
		if club["name"] != "North FC" || club["city"] != "Toronto" {
			t.Errorf("club = %v, want North FC / Toronto", club)
		}
		if _, ok := rec.Related["sponsor"]; ok {
			t.Error("sponsor populated despite field filter")
		}
	})

	t.Run("resolves foreign key by reverse lookup", func(t *testing.T) {
		sponsor := teamDoc("s-1", 1, map[string]any{"teamId": "t-1"})
		sponsor["name"] = "Acme"
		st := mock.New().
			Seed("teams", teamDoc("t-1", 1, nil)).
			Seed("sponsors", sponsor)
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec, "sponsor")

		got, ok := rec.Related["sponsor"]
		if !ok {
			t.Fatal("sponsor relation not populated")
		}
		if got["name"] != "Acme" {
			t.Errorf("sponsor name = %v, want Acme", got["name"])
		}
	})

	t.Run("populates every relation by default", func(t *testing.T) {
		sponsor := teamDoc("s-1", 1, map[string]any{"teamId": "t-1"})
		st := mock.New().
			Seed("teams", teamDoc("t-1", 1, map[string]any{"clubId": "c-1"})).
			Seed("clubs", clubDoc("c-1", "North FC", "Toronto")).
			Seed("sponsors", sponsor)
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec)

		if len(rec.Related) != 2 {
			t.Errorf("populated %d relations, want 2: %v", len(rec.Related), rec.Related)
		}
	})

	t.Run("missing target is omitted", func(t *testing.T) {
		st := mock.New().Seed("teams", teamDoc("t-1", 1, map[string]any{"clubId": "c-gone"}))
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec, "club")
		if _, ok := rec.Related["club"]; ok {
			t.Error("club populated despite missing target")
		}
	})

	t.Run("soft-deleted target is omitted", func(t *testing.T) {
		club := clubDoc("c-1", "North FC", "Toronto")
		club["deletedAt"] = storagemodels.FormatTime(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
		st := mock.New().
			Seed("teams", teamDoc("t-1", 1, map[string]any{"clubId": "c-1"})).
			Seed("clubs", club)
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec, "club")
		if _, ok := rec.Related["club"]; ok {
			t.Error("club populated despite soft-deleted target")
		}
	})

	t.Run("lookup failure never fails the record", func(t *testing.T) {
		st := mock.New().
			Seed("teams", teamDoc("t-1", 1, map[string]any{"clubId": "c-1"})).
			Seed("clubs", clubDoc("c-1", "North FC", "Toronto"))
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		st.WithPointReadError(errors.E(errors.KindUnavailable, "down"))
		rec = r.Populate(ctx, rec, "club")
		if rec == nil {
			t.Fatal("Populate returned nil record")
		}
		if _, ok := rec.Related["club"]; ok {
			t.Error("club populated despite lookup failure")
		}
	})

	t.Run("absent local key is skipped", func(t *testing.T) {
		st := mock.New().Seed("teams", teamDoc("t-1", 1, nil))
		r := newTeamRepo(t, st, withClubRelations())

		rec, err := r.GetByID(ctx, "t-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		rec = r.Populate(ctx, rec, "club")
		if _, ok := rec.Related["club"]; ok {
			t.Error("club populated without a local key value")
		}
	})
}
