// Package remote is the reconciler's view of the central relational store.
// The central store is authoritative for document numbers and for
// conflicting concurrent edits; the reconciler is its only writer on the
// sync path.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/printflowhq/printshop_backend/models"
)

var ErrNotFound = errors.New("remote record not found")

type Store interface {
	// SelectByID returns ErrNotFound when the id is absent remotely.
	SelectByID(ctx context.Context, kind models.RecordKind, id string) (models.Record, error)
	Insert(ctx context.Context, rec models.Record) error
	// UpdateByID overwrites the remote row with the local payload but never
	// touches the document-number column: the number already assigned
	// remotely survives any number of re-uploads.
	UpdateByID(ctx context.Context, rec models.Record) error
	DeleteByID(ctx context.Context, kind models.RecordKind, id string) error

	// NextSequence atomically advances and returns the per-kind document
	// number. Safe under concurrent callers.
	NextSequence(ctx context.Context, shopId string, kind models.RecordKind) (int64, error)

	// FetchModifiedSince returns rows of the kind modified at or after
	// since. Zero results is not an error.
	FetchModifiedSince(ctx context.Context, shopId string, kind models.RecordKind, since time.Time) ([]models.Record, error)
}
