/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/repokit/errors"
	"github.com/suparena/repokit/store"
	"github.com/suparena/repokit/storagemodels"
)

const (
	versionAbsent = int64(-1)
	versionUnset  = int64(0)
)

// Transact implements store.Store. Reads through the Txn use strongly
// consistent GetItem calls and record the observed document version and
// write stamp; the commit conditions every staged write on both still
// holding, so a concurrent writer surfaces as an aborted-kind error the
// engine can retry. The stamp matters because soft deletes and restores
// rewrite a document without bumping its version.
func (s *Store) Transact(ctx context.Context, fn func(tx store.Txn) error) error {
	tx := &txn{
		ctx:      ctx,
		store:    s,
		observed: make(map[string]observedState),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.readErr != nil {
		return tx.readErr
	}
	if len(tx.writes) == 0 {
		return nil
	}
	if len(tx.writes) > 100 {
		return errors.E(errors.KindInvalidArgument,
			"transaction stages %d writes, limit is 100", len(tx.writes))
	}
	return tx.commit()
}

type stagedWrite struct {
	kind       storagemodels.WriteKind
	collection string
	id         string
	doc        storagemodels.Document
}

// observedState is what a transactional read saw for one document.
type observedState struct {
	version   int64
	updatedAt string
	hasStamp  bool
}

type txn struct {
	ctx      context.Context
	store    *Store
	observed map[string]observedState
	writes   []stagedWrite
	readErr  error
}

func refKey(collection, id string) string {
	return collection + "/" + id
}

// Get implements store.Txn.
func (t *txn) Get(collection, id string) (storagemodels.Document, error) {
	key, err := t.store.keys.key(collection, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidArgument, err, "txn get %s/%s", collection, id)
	}

	out, err := t.store.client.GetItem(t.ctx, &sdk.GetItemInput{
		TableName:      &t.store.table,
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		err = mapError(err, "txn GetItem %s/%s", collection, id)
		t.readErr = err
		return nil, err
	}

	if out.Item == nil {
		t.observed[refKey(collection, id)] = observedState{version: versionAbsent}
		return nil, nil
	}

	doc, err := itemToDoc(out.Item)
	if err != nil {
		t.readErr = err
		return nil, err
	}
	state := observedState{version: doc.Version()}
	if stamp, ok := doc[storagemodels.FieldUpdatedAt].(string); ok {
		state.updatedAt = stamp
		state.hasStamp = true
	}
	t.observed[refKey(collection, id)] = state
	return doc, nil
}

// Put implements store.Txn.
func (t *txn) Put(collection, id string, doc storagemodels.Document) {
	t.writes = append(t.writes, stagedWrite{
		kind:       storagemodels.WritePut,
		collection: collection,
		id:         id,
		doc:        doc,
	})
}

// Delete implements store.Txn.
func (t *txn) Delete(collection, id string) {
	t.writes = append(t.writes, stagedWrite{
		kind:       storagemodels.WriteDelete,
		collection: collection,
		id:         id,
	})
}

func (t *txn) commit() error {
	items := make([]types.TransactWriteItem, 0, len(t.writes))

	for _, w := range t.writes {
		cond, names, values := t.condition(w)

		switch w.kind {
		case storagemodels.WriteDelete:
			key, err := t.store.keys.key(w.collection, w.id)
			if err != nil {
				return errors.Wrap(errors.KindInvalidArgument, err, "txn delete %s/%s", w.collection, w.id)
			}
			del := &types.Delete{
				TableName: &t.store.table,
				Key:       key,
			}
			if cond != "" {
				del.ConditionExpression = &cond
				del.ExpressionAttributeNames = names
				del.ExpressionAttributeValues = values
			}
			items = append(items, types.TransactWriteItem{Delete: del})

		default:
			item, err := t.store.docToItem(w.collection, w.id, w.doc)
			if err != nil {
				return err
			}
			put := &types.Put{
				TableName: &t.store.table,
				Item:      item,
			}
			if cond != "" {
				put.ConditionExpression = &cond
				put.ExpressionAttributeNames = names
				put.ExpressionAttributeValues = values
			}
			items = append(items, types.TransactWriteItem{Put: put})
		}
	}

	_, err := t.store.client.TransactWriteItems(t.ctx, &sdk.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return mapTransactError(err)
	}
	return nil
}

// condition guards a staged write with the version and write stamp
// observed when the document was read inside this transaction. The
// stamp is conditioned alongside the version because soft deletes and
// restores restamp updatedAt without bumping version. Writes against
// documents never read in the transaction commit unconditionally.
func (t *txn) condition(w stagedWrite) (string, map[string]string, map[string]types.AttributeValue) {
	observed, ok := t.observed[refKey(w.collection, w.id)]
	if !ok {
		return "", nil, nil
	}
	if observed.version == versionAbsent {
		return "attribute_not_exists(PK)", nil, nil
	}

	names := map[string]string{"#upd": storagemodels.FieldUpdatedAt}
	values := map[string]types.AttributeValue{}

	stampCond := "attribute_not_exists(#upd)"
	if observed.hasStamp {
		stampCond = "#upd = :upd"
		values[":upd"] = &types.AttributeValueMemberS{Value: observed.updatedAt}
	}

	if observed.version == versionUnset {
		names["#ver"] = storagemodels.FieldVersion
		if len(values) == 0 {
			values = nil
		}
		return "attribute_exists(PK) AND attribute_not_exists(#ver) AND " + stampCond,
			names, values
	}

	names["#ver"] = storagemodels.FieldVersion
	values[":ver"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", observed.version)}
	return "#ver = :ver AND " + stampCond, names, values
}

// mapTransactError classifies a failed TransactWriteItems call. A
// cancelled transaction with a failed condition or a transactional
// conflict means another writer won the race; the engine retries those.
func mapTransactError(err error) error {
	var cancelled *types.TransactionCanceledException
	if stderrors.As(err, &cancelled) {
		for _, reason := range cancelled.CancellationReasons {
			code := aws.ToString(reason.Code)
			if code == "ConditionalCheckFailed" || code == "TransactionConflict" {
				return errors.Wrap(errors.KindAborted, err, "transaction cancelled: %s", code)
			}
		}
		return errors.Wrap(errors.KindTransactionFailed, err, "transaction cancelled: %s", cancelReasons(cancelled))
	}

	var conflict *types.TransactionConflictException
	if stderrors.As(err, &conflict) {
		return errors.Wrap(errors.KindAborted, err, "transaction conflict")
	}
	return mapError(err, "TransactWriteItems")
}

func cancelReasons(e *types.TransactionCanceledException) string {
	codes := make([]string, 0, len(e.CancellationReasons))
	for _, r := range e.CancellationReasons {
		if c := aws.ToString(r.Code); c != "" && c != "None" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return "unknown reason"
	}
	return strings.Join(codes, ", ")
}
