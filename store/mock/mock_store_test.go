/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"context"
	"testing"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
	"github.com/suparena/repokit/store"
)

func doc(id string, version int64, fields map[string]any) storagemodels.Document {
	d := storagemodels.Document{"id": id, "version": version}
	for k, v := range fields {
		d[k] = v
	}
	return d
}

func TestPointRead(t *testing.T) {
	s := New().Seed("teams", doc("t-1", 1, map[string]any{"name": "Rovers"}))

	t.Run("found", func(t *testing.T) {
		d, err := s.PointRead(context.Background(), "teams", "t-1")
		if err != nil {
			t.Fatalf("PointRead: %v", err)
		}
		if d["name"] != "Rovers" {
			t.Errorf("doc = %v", d)
		}

		// Mutating the returned document must not leak into the store.
		d["name"] = "Wanderers"
		if again := s.Get("teams", "t-1"); again["name"] != "Rovers" {
			t.Error("returned document aliases store state")
		}
	})

	t.Run("missing is nil nil", func(t *testing.T) {
		d, err := s.PointRead(context.Background(), "teams", "absent")
		if err != nil || d != nil {
			t.Errorf("got (%v, %v), want (nil, nil)", d, err)
		}
	})
}

func TestMultiRead(t *testing.T) {
	s := New().Seed("teams",
		doc("t-1", 1, nil),
		doc("t-2", 1, nil),
	)

	out, err := s.MultiRead(context.Background(), "teams", []string{"t-2", "absent", "t-1"})
	if err != nil {
		t.Fatalf("MultiRead: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	if out[0].ID() != "t-2" || out[1] != nil || out[2].ID() != "t-1" {
		t.Errorf("results out of order: %v", out)
	}
	if s.MultiReadCalls() != 1 {
		t.Errorf("MultiReadCalls = %d, want 1", s.MultiReadCalls())
	}
}

func TestRangeQuery(t *testing.T) {
	s := New().Seed("teams",
		doc("t-1", 1, map[string]any{"points": 30, "division": "east"}),
		doc("t-2", 1, map[string]any{"points": 10, "division": "east"}),
		doc("t-3", 1, map[string]any{"points": 20, "division": "west"}),
	)

	t.Run("filter and order", func(t *testing.T) {
		page, err := s.RangeQuery(context.Background(), "teams", &storagemodels.QueryParams{
			Filters: []storagemodels.Filter{{Field: "division", Op: storagemodels.OpEq, Value: "east"}},
			Order:   []storagemodels.Order{{Field: "points", Descending: true}},
		})
		if err != nil {
			t.Fatalf("RangeQuery: %v", err)
		}
		if len(page.Documents) != 2 || page.Documents[0].ID() != "t-1" || page.Documents[1].ID() != "t-2" {
			t.Errorf("page = %v", page.Documents)
		}
	})

	t.Run("limit reports more", func(t *testing.T) {
		page, err := s.RangeQuery(context.Background(), "teams", &storagemodels.QueryParams{
			Order: []storagemodels.Order{{Field: "points"}},
			Limit: 2,
		})
		if err != nil {
			t.Fatalf("RangeQuery: %v", err)
		}
		if len(page.Documents) != 2 || !page.HasMore {
			t.Errorf("got %d docs, hasMore=%v", len(page.Documents), page.HasMore)
		}
	})

	t.Run("start after resumes", func(t *testing.T) {
		page, err := s.RangeQuery(context.Background(), "teams", &storagemodels.QueryParams{
			Order:      []storagemodels.Order{{Field: "points"}},
			StartAfter: storagemodels.Document{"id": "t-2", "points": 10},
		})
		if err != nil {
			t.Fatalf("RangeQuery: %v", err)
		}
		if len(page.Documents) != 2 || page.Documents[0].ID() != "t-3" {
			t.Errorf("page = %v", page.Documents)
		}
	})

	t.Run("nil equality excludes marked documents", func(t *testing.T) {
		s := New().Seed("teams",
			doc("live", 1, nil),
			doc("gone", 1, map[string]any{"deletedAt": "2026-01-01T00:00:00Z"}),
		)
		page, err := s.RangeQuery(context.Background(), "teams", &storagemodels.QueryParams{
			Filters: []storagemodels.Filter{{Field: "deletedAt", Op: storagemodels.OpEq, Value: nil}},
		})
		if err != nil {
			t.Fatalf("RangeQuery: %v", err)
		}
		if len(page.Documents) != 1 || page.Documents[0].ID() != "live" {
			t.Errorf("page = %v", page.Documents)
		}
	})
}

func TestTransact(t *testing.T) {
	t.Run("commit applies writes", func(t *testing.T) {
		s := New()
		err := s.Transact(context.Background(), func(tx store.Txn) error {
			tx.Put("teams", "t-1", doc("t-1", 1, nil))
			return nil
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
		if s.Get("teams", "t-1") == nil {
			t.Error("put not applied")
		}
	})

	t.Run("version change aborts", func(t *testing.T) {
		s := New().Seed("teams", doc("t-1", 1, nil))

		err := s.Transact(context.Background(), func(tx store.Txn) error {
			if _, err := tx.Get("teams", "t-1"); err != nil {
				return err
			}
			// Concurrent writer bumps the version before commit.
			s.Seed("teams", doc("t-1", 2, nil))
			tx.Put("teams", "t-1", doc("t-1", 2, nil))
			return nil
		})
		if !errors.IsAborted(err) {
			t.Errorf("err = %v, want aborted", err)
		}
	})

	t.Run("stamp change aborts despite unchanged version", func(t *testing.T) {
		// Soft deletes and restores restamp updatedAt without bumping
		// version; a transaction that read the old document must not
		// commit over them.
		s := New().Seed("teams", doc("t-1", 1, nil))

		err := s.Transact(context.Background(), func(tx store.Txn) error {
			if _, err := tx.Get("teams", "t-1"); err != nil {
				return err
			}
			s.Seed("teams", doc("t-1", 1, map[string]any{
				"updatedAt": "2026-03-02T00:00:00Z",
				"deletedAt": "2026-03-02T00:00:00Z",
			}))
			tx.Put("teams", "t-1", doc("t-1", 2, nil))
			return nil
		})
		if !errors.IsAborted(err) {
			t.Errorf("err = %v, want aborted", err)
		}
		if s.Get("teams", "t-1").Deleted() != true {
			t.Error("soft-delete marker lost to a stale commit")
		}
	})

	t.Run("concurrent create aborts an absent read", func(t *testing.T) {
		s := New()

		err := s.Transact(context.Background(), func(tx store.Txn) error {
			if _, err := tx.Get("teams", "t-1"); err != nil {
				return err
			}
			s.Seed("teams", doc("t-1", 1, nil))
			tx.Put("teams", "t-1", doc("t-1", 1, nil))
			return nil
		})
		if !errors.IsAborted(err) {
			t.Errorf("err = %v, want aborted", err)
		}
	})

	t.Run("injected aborts decrement", func(t *testing.T) {
		s := New().WithAbortNext(1)
		put := func() error {
			return s.Transact(context.Background(), func(tx store.Txn) error {
				tx.Put("teams", "t-1", doc("t-1", 1, nil))
				return nil
			})
		}
		if err := put(); !errors.IsAborted(err) {
			t.Fatalf("first commit: %v, want aborted", err)
		}
		if err := put(); err != nil {
			t.Fatalf("second commit: %v", err)
		}
	})
}

func TestBatchWrite(t *testing.T) {
	s := New().WithPutErrorFor("bad", errors.E(errors.KindUnavailable, "boom"))

	results, err := s.BatchWrite(context.Background(), "teams", []storagemodels.WriteOp{
		{Kind: storagemodels.WritePut, ID: "ok", Document: doc("ok", 1, nil)},
		{Kind: storagemodels.WritePut, ID: "bad", Document: doc("bad", 1, nil)},
	})
	if err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("ok result: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("bad result should carry the injected error")
	}
	if s.Get("teams", "ok") == nil || s.Get("teams", "bad") != nil {
		t.Error("only the ok document should be stored")
	}
}

func TestListen(t *testing.T) {
	s := New()

	var events []storagemodels.ChangeEvent
	cancel, err := s.Listen(context.Background(), "teams",
		storagemodels.ListenTarget{ID: "t-1"},
		func(ev storagemodels.ChangeEvent) { events = append(events, ev) },
		nil,
	)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	write := func(version int64) {
		err := s.Transact(context.Background(), func(tx store.Txn) error {
			tx.Put("teams", "t-1", doc("t-1", version, nil))
			return nil
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
	}

	write(1)
	write(2)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != storagemodels.ChangeAdded || events[1].Kind != storagemodels.ChangeModified {
		t.Errorf("event kinds = %v, %v", events[0].Kind, events[1].Kind)
	}

	cancel()
	write(3)
	if len(events) != 2 {
		t.Error("cancelled listener still receiving events")
	}
}

func TestListenQueryMembership(t *testing.T) {
	s := New()

	var events []storagemodels.ChangeEvent
	_, err := s.Listen(context.Background(), "teams",
		storagemodels.ListenTarget{Query: &storagemodels.QueryParams{
			Filters: []storagemodels.Filter{
				{Field: "division", Op: storagemodels.OpEq, Value: "east"},
			},
		}},
		func(ev storagemodels.ChangeEvent) { events = append(events, ev) },
		nil,
	)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	put := func(version int64, division string) {
		err := s.Transact(context.Background(), func(tx store.Txn) error {
			tx.Put("teams", "t-1", doc("t-1", version, map[string]any{"division": division}))
			return nil
		})
		if err != nil {
			t.Fatalf("Transact: %v", err)
		}
	}

	put(1, "east") // enters the result set
	put(2, "east") // stays
	put(3, "west") // leaves
	put(4, "west") // still outside, no event

	kinds := make([]storagemodels.ChangeKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	want := []storagemodels.ChangeKind{
		storagemodels.ChangeAdded,
		storagemodels.ChangeModified,
		storagemodels.ChangeRemoved,
	}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestCountMatching(t *testing.T) {
	s := New().Seed("teams",
		doc("t-1", 1, map[string]any{"division": "east"}),
		doc("t-2", 1, map[string]any{"division": "west"}),
		doc("t-3", 1, map[string]any{"division": "east"}),
	)

	n, err := s.CountMatching(context.Background(), "teams", []storagemodels.Filter{
		{Field: "division", Op: storagemodels.OpEq, Value: "east"},
	})
	if err != nil {
		t.Fatalf("CountMatching: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
