/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyMap maps table key attributes to macro templates expanded per
// document. Macros name the two values every key can draw on: the
// collection and the document id.
//
//	KeyMap{
//	    "PK": "COL#{collection}",
//	    "SK": "DOC#{id}",
//	}
//
// is the single-table default used when no map is supplied.
type KeyMap map[string]string

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// DefaultKeyMap returns the single-table key layout.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		"PK": "COL#{collection}",
		"SK": "DOC#{id}",
	}
}

// expand substitutes the collection and id macros in every template.
func (m KeyMap) expand(collection, id string) (map[string]string, error) {
	vals := map[string]string{
		"collection": collection,
		"id":         id,
	}

	out := make(map[string]string, len(m))
	for attr, template := range m {
		var missing string
		expanded := macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
			name := strings.Trim(macro, "{}")
			v, ok := vals[name]
			if !ok {
				missing = name
				return ""
			}
			return v
		})
		if missing != "" {
			return nil, fmt.Errorf("key template %q references unknown macro %q", template, missing)
		}
		out[attr] = expanded
	}
	return out, nil
}

// key builds the primary-key attribute map for one document.
func (m KeyMap) key(collection, id string) (map[string]types.AttributeValue, error) {
	expanded, err := m.expand(collection, id)
	if err != nil {
		return nil, err
	}

	pk, okPK := expanded["PK"]
	sk, okSK := expanded["SK"]
	if !okPK || !okSK || pk == "" || sk == "" {
		return nil, fmt.Errorf("key map missing valid PK or SK")
	}

	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}, nil
}

// partitionValue returns the expanded partition key for a collection.
func (m KeyMap) partitionValue(collection string) (string, error) {
	expanded, err := m.expand(collection, "")
	if err != nil {
		return "", err
	}
	pk, ok := expanded["PK"]
	if !ok || pk == "" {
		return "", fmt.Errorf("key map has no PK template")
	}
	return pk, nil
}
