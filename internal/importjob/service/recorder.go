package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"gorm.io/gorm"
)

// Recorder captures the writes a handler makes for one row. Captured
// operations commit in the same transaction as the row, so a record
// write can never land without its operation.
type Recorder interface {
	Created(collection string, docID snowflake.ID, after any) error
	Updated(collection string, docID snowflake.ID, before, after any) error
	Deleted(collection string, docID snowflake.ID, before any) error
}

type opLog struct {
	genID *snowflake.Node
	jobID snowflake.ID
	// nextIndex is shared across rows so operation order matches
	// arrival order for the whole batch. Rows that roll back leave
	// gaps, which the replay tolerates.
	nextIndex *int64
	ops       []domain.Operation
}

func newOpLog(genID *snowflake.Node, jobID snowflake.ID, nextIndex *int64) *opLog {
	return &opLog{genID: genID, jobID: jobID, nextIndex: nextIndex}
}

func (l *opLog) Created(collection string, docID snowflake.ID, after any) error {
	return l.append(collection, docID, domain.OpCreate, nil, after)
}

func (l *opLog) Updated(collection string, docID snowflake.ID, before, after any) error {
	return l.append(collection, docID, domain.OpUpdate, before, after)
}

func (l *opLog) Deleted(collection string, docID snowflake.ID, before any) error {
	return l.append(collection, docID, domain.OpDelete, before, nil)
}

func (l *opLog) append(collection string, docID snowflake.ID, kind domain.OpKind, before, after any) error {
	op := domain.Operation{
		ID:         l.genID.Generate(),
		JobID:      l.jobID,
		OpIndex:    *l.nextIndex,
		Collection: collection,
		DocID:      docID,
		Kind:       kind,
	}
	if before != nil {
		raw, err := json.Marshal(before)
		if err != nil {
			return err
		}
		op.Before = raw
	}
	if after != nil {
		raw, err := json.Marshal(after)
		if err != nil {
			return err
		}
		op.After = raw
	}
	*l.nextIndex++
	l.ops = append(l.ops, op)
	return nil
}

// Flush writes the buffered operations inside tx.
func (l *opLog) Flush(ctx context.Context, tx *gorm.DB, repo domain.Repository) error {
	if len(l.ops) == 0 {
		return nil
	}
	return repo.WithTx(tx).AppendOperations(ctx, l.ops)
}
