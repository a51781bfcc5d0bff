/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/storagemodels"
)

// Store implements store.Store over a single DynamoDB table. Every
// collection lives in its own partition; the document id is the sort
// key. The layout is configurable through a KeyMap.
type Store struct {
	client *sdk.Client
	table  string
	keys   KeyMap
	poll   time.Duration
	log    *logrus.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithKeyMap overrides the single-table key layout.
func WithKeyMap(m KeyMap) Option {
	return func(s *Store) { s.keys = m }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithPollInterval sets the change-listener polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.poll = d }
}

// New initializes a DynamoDB-backed store from explicit configuration.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	// Explicit options win over the environment-derived poll interval.
	opts = append([]Option{WithPollInterval(cfg.PollInterval)}, opts...)
	return NewFromClient(client, cfg.Table, opts...), nil
}

// NewFromClient wraps an existing DynamoDB client.
func NewFromClient(client *sdk.Client, table string, opts ...Option) *Store {
	s := &Store{
		client: client,
		table:  table,
		keys:   DefaultKeyMap(),
		poll:   2 * time.Second,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poll <= 0 {
		s.poll = 2 * time.Second
	}
	return s
}

// PointRead implements store.Store.
func (s *Store) PointRead(ctx context.Context, collection, id string) (storagemodels.Document, error) {
	key, err := s.keys.key(collection, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "point read %s/%s", collection, id)
	}

	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName: &s.table,
		Key:       key,
	})
	if err != nil {
		return nil, mapError(err, "GetItem %s/%s", collection, id)
	}
	if out.Item == nil {
		return nil, nil
	}
	return itemToDoc(out.Item)
}

// MultiRead implements store.Store. DynamoDB's batch read returns items
// in arbitrary order; results are re-aligned to the request order with
// nil entries for absent ids.
func (s *Store) MultiRead(ctx context.Context, collection string, ids []string) ([]storagemodels.Document, error) {
	found := make(map[string]storagemodels.Document, len(ids))

	for start := 0; start < len(ids); start += 100 {
		end := start + 100
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			key, err := s.keys.key(collection, id)
			if err != nil {
				return nil, errors.Wrap(errors.KindInvalidArgument, err, "multi read %s", collection)
			}
			keys = append(keys, key)
		}

		for attempt := 0; len(keys) > 0; attempt++ {
			out, err := s.client.BatchGetItem(ctx, &sdk.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					s.table: {Keys: keys},
				},
			})
			if err != nil {
				return nil, mapError(err, "BatchGetItem %s", collection)
			}

			for _, item := range out.Responses[s.table] {
				doc, err := itemToDoc(item)
				if err != nil {
					return nil, err
				}
				found[doc.ID()] = doc
			}

			keys = nil
			if unprocessed, ok := out.UnprocessedKeys[s.table]; ok {
				keys = unprocessed.Keys
			}
			if len(keys) == 0 {
				break
			}
			if attempt >= 3 {
				return nil, errors.E(errors.KindUnavailable,
					"BatchGetItem %s left %d keys unprocessed", collection, len(keys))
			}
			s.backoff(ctx, attempt)
		}
	}

	out := make([]storagemodels.Document, len(ids))
	for i, id := range ids {
		if doc, ok := found[id]; ok {
			out[i] = doc
		}
	}
	return out, nil
}

// RangeQuery implements store.Store. Filters are pushed down as a
// DynamoDB filter expression; ordering and cursor positioning happen
// client-side because arbitrary order fields cannot ride the sort key.
func (s *Store) RangeQuery(ctx context.Context, collection string, params *storagemodels.QueryParams) (*storagemodels.Page, error) {
	if params == nil {
		params = &storagemodels.QueryParams{}
	}

	matched, err := s.queryPartition(ctx, collection, params.Filters)
	if err != nil {
		return nil, err
	}

	storagemodels.SortDocuments(matched, params.Order)

	if params.StartAfter != nil {
		idx := storagemodels.StartIndex(matched, params.Order, params.StartAfter)
		if idx < len(matched) {
			matched = matched[idx:]
		} else {
			matched = nil
		}
	}

	hasMore := false
	if params.Limit > 0 && int32(len(matched)) > params.Limit {
		matched = matched[:params.Limit]
		hasMore = true
	}
	return &storagemodels.Page{Documents: matched, HasMore: hasMore}, nil
}

// queryPartition pages through one collection partition collecting every
// document the filters accept.
func (s *Store) queryPartition(ctx context.Context, collection string, filters []storagemodels.Filter) ([]storagemodels.Document, error) {
	input, err := s.partitionQueryInput(collection, filters)
	if err != nil {
		return nil, err
	}

	var docs []storagemodels.Document
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, mapError(err, "Query %s", collection)
		}
		for _, item := range out.Items {
			doc, err := itemToDoc(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return docs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (s *Store) partitionQueryInput(collection string, filters []storagemodels.Filter) (*sdk.QueryInput, error) {
	pk, err := s.keys.partitionValue(collection)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "query %s", collection)
	}

	keyCond := "PK = :pk"
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}

	filterExpr, filterNames, filterValues, err := buildFilterExpression(filters)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "query %s", collection)
	}
	for k, v := range filterNames {
		names[k] = v
	}
	for k, v := range filterValues {
		values[k] = v
	}

	input := &sdk.QueryInput{
		TableName:                 &s.table,
		KeyConditionExpression:    &keyCond,
		ExpressionAttributeValues: values,
	}
	if filterExpr != "" {
		input.FilterExpression = &filterExpr
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	return input, nil
}

// CountMatching implements store.Store.
func (s *Store) CountMatching(ctx context.Context, collection string, filters []storagemodels.Filter) (int64, error) {
	input, err := s.partitionQueryInput(collection, filters)
	if err != nil {
		return 0, err
	}
	input.Select = types.SelectCount

	var total int64
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return 0, mapError(err, "Query count %s", collection)
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// BatchWrite implements store.Store. Unprocessed items are retried a few
// times; anything still unprocessed is reported per-item so the caller
// can account for partial failure.
func (s *Store) BatchWrite(ctx context.Context, collection string, ops []storagemodels.WriteOp) ([]storagemodels.WriteResult, error) {
	results := make([]storagemodels.WriteResult, len(ops))

	for start := 0; start < len(ops); start += 25 {
		end := start + 25
		if end > len(ops) {
			end = len(ops)
		}
		if err := s.batchWriteChunk(ctx, collection, ops[start:end], results[start:end]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) batchWriteChunk(ctx context.Context, collection string, ops []storagemodels.WriteOp, results []storagemodels.WriteResult) error {
	requests := make([]types.WriteRequest, 0, len(ops))
	bySortKey := make(map[string]int, len(ops))

	for i, op := range ops {
		results[i] = storagemodels.WriteResult{ID: op.ID}

		key, err := s.keys.key(collection, op.ID)
		if err != nil {
			return errors.Wrap(errors.KindInvalidArgument, err, "batch write %s", collection)
		}
		sk := key["SK"].(*types.AttributeValueMemberS).Value
		bySortKey[sk] = i

		switch op.Kind {
		case storagemodels.WriteDelete:
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		default:
			item, err := s.docToItem(collection, op.ID, op.Document)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}
	}

	for attempt := 0; len(requests) > 0; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: requests},
		})
		if err != nil {
			return mapError(err, "BatchWriteItem %s", collection)
		}

		requests = out.UnprocessedItems[s.table]
		if len(requests) == 0 {
			return nil
		}
		if attempt >= 3 {
			break
		}
		s.backoff(ctx, attempt)
	}

	// Whatever is still unprocessed failed; everything else succeeded.
	for _, req := range requests {
		var key map[string]types.AttributeValue
		if req.DeleteRequest != nil {
			key = req.DeleteRequest.Key
		} else if req.PutRequest != nil {
			key = req.PutRequest.Item
		}
		skAttr, ok := key["SK"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if i, ok := bySortKey[skAttr.Value]; ok {
			results[i].Err = errors.E(errors.KindUnavailable, "write for %q not processed", results[i].ID)
		}
	}
	return nil
}

func (s *Store) docToItem(collection, id string, doc storagemodels.Document) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(map[string]any(doc))
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "marshal document %s/%s", collection, id)
	}
	key, err := s.keys.key(collection, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "document key %s/%s", collection, id)
	}
	for k, v := range key {
		item[k] = v
	}
	return item, nil
}

func itemToDoc(item map[string]types.AttributeValue) (storagemodels.Document, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "unmarshal item")
	}
	delete(m, "PK")
	delete(m, "SK")
	return storagemodels.Document(m), nil
}

func (s *Store) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(attempt+1) * 50 * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// mapError classifies a DynamoDB error into the engine taxonomy.
func mapError(err error, format string, args ...any) error {
	var kind errors.Kind
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled):
		kind = errors.KindDeadlineExceeded
	case isThrottle(err):
		kind = errors.KindUnavailable
	default:
		var ise *types.InternalServerError
		if stderrors.As(err, &ise) {
			kind = errors.KindInternal
		} else {
			kind = errors.KindUnknown
		}
	}
	return errors.Wrap(kind, err, format, args...)
}

func isThrottle(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	if stderrors.As(err, &throughput) {
		return true
	}
	var limit *types.RequestLimitExceeded
	return stderrors.As(err, &limit)
}
