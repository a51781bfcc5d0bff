/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/repokit/storagemodels"
)

// buildFilterExpression translates engine filters into a DynamoDB filter
// expression with placeholder names and values. An equality filter
// against nil matches documents where the attribute is absent or NULL,
// which is how default visibility excludes soft-deleted documents
// server-side.
func buildFilterExpression(filters []storagemodels.Filter) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(filters) == 0 {
		return "", nil, nil, nil
	}

	clauses := make([]string, 0, len(filters))
	names := make(map[string]string, len(filters))
	values := make(map[string]types.AttributeValue)

	for i, f := range filters {
		nameph := fmt.Sprintf("#f%d", i)
		valph := fmt.Sprintf(":v%d", i)
		names[nameph] = f.Field

		switch f.Op {
		case storagemodels.OpEq:
			if f.Value == nil {
				values[valph] = &types.AttributeValueMemberNULL{Value: true}
				clauses = append(clauses, fmt.Sprintf("(attribute_not_exists(%s) OR %s = %s)", nameph, nameph, valph))
				continue
			}
			av, err := attributevalue.Marshal(f.Value)
			if err != nil {
				return "", nil, nil, fmt.Errorf("marshal filter value for %q: %w", f.Field, err)
			}
			values[valph] = av
			clauses = append(clauses, fmt.Sprintf("%s = %s", nameph, valph))

		case storagemodels.OpNe:
			if f.Value == nil {
				values[valph] = &types.AttributeValueMemberNULL{Value: true}
				clauses = append(clauses, fmt.Sprintf("(attribute_exists(%s) AND %s <> %s)", nameph, nameph, valph))
				continue
			}
			av, err := attributevalue.Marshal(f.Value)
			if err != nil {
				return "", nil, nil, fmt.Errorf("marshal filter value for %q: %w", f.Field, err)
			}
			values[valph] = av
			clauses = append(clauses, fmt.Sprintf("%s <> %s", nameph, valph))

		case storagemodels.OpGt, storagemodels.OpGte, storagemodels.OpLt, storagemodels.OpLte:
			av, err := attributevalue.Marshal(f.Value)
			if err != nil {
				return "", nil, nil, fmt.Errorf("marshal filter value for %q: %w", f.Field, err)
			}
			values[valph] = av
			clauses = append(clauses, fmt.Sprintf("%s %s %s", nameph, comparisonOperator(f.Op), valph))

		case storagemodels.OpIn:
			candidates, err := attributevalue.MarshalList(inCandidates(f.Value))
			if err != nil {
				return "", nil, nil, fmt.Errorf("marshal IN candidates for %q: %w", f.Field, err)
			}
			if len(candidates) == 0 {
				// IN over an empty set matches nothing.
				clauses = append(clauses, fmt.Sprintf("attribute_not_exists(%s) AND attribute_exists(%s)", nameph, nameph))
				continue
			}
			placeholders := make([]string, len(candidates))
			for j, av := range candidates {
				p := fmt.Sprintf("%s_%d", valph, j)
				values[p] = av
				placeholders[j] = p
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", nameph, strings.Join(placeholders, ", ")))

		default:
			return "", nil, nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}

	return strings.Join(clauses, " AND "), names, values, nil
}

func comparisonOperator(op storagemodels.FilterOp) string {
	switch op {
	case storagemodels.OpGt:
		return ">"
	case storagemodels.OpGte:
		return ">="
	case storagemodels.OpLt:
		return "<"
	default:
		return "<="
	}
}

func inCandidates(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}
