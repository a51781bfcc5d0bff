/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestKeyMapExpand(t *testing.T) {
	t.Run("default layout", func(t *testing.T) {
		key, err := DefaultKeyMap().key("teams", "t-1")
		if err != nil {
			t.Fatalf("key: %v", err)
		}

		pk := key["PK"].(*types.AttributeValueMemberS).Value
		sk := key["SK"].(*types.AttributeValueMemberS).Value
		if pk != "COL#teams" {
			t.Errorf("PK = %q, want COL#teams", pk)
		}
		if sk != "DOC#t-1" {
			t.Errorf("SK = %q, want DOC#t-1", sk)
		}
	})

	t.Run("static sort key", func(t *testing.T) {
		m := KeyMap{"PK": "{collection}", "SK": "META"}
		key, err := m.key("teams", "ignored")
		if err != nil {
			t.Fatalf("key: %v", err)
		}
		if sk := key["SK"].(*types.AttributeValueMemberS).Value; sk != "META" {
			t.Errorf("SK = %q, want META", sk)
		}
	})

	t.Run("unknown macro rejected", func(t *testing.T) {
		m := KeyMap{"PK": "USER#{Email}", "SK": "DOC#{id}"}
		if _, err := m.key("teams", "t-1"); err == nil {
			t.Fatal("expected error for unknown macro")
		}
	})

	t.Run("missing sort key rejected", func(t *testing.T) {
		m := KeyMap{"PK": "COL#{collection}"}
		if _, err := m.key("teams", "t-1"); err == nil {
			t.Fatal("expected error for missing SK")
		}
	})

	t.Run("partition value", func(t *testing.T) {
		pk, err := DefaultKeyMap().partitionValue("matches")
		if err != nil {
			t.Fatalf("partitionValue: %v", err)
		}
		if pk != "COL#matches" {
			t.Errorf("partition value = %q, want COL#matches", pk)
		}
	})
}
