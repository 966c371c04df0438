package service

import (
	"context"
	"fmt"

	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"

	"github.com/google/uuid"
)

// RecordWriterImpl implements ports.RecordWriter. Both the backfill and the
// webhook path write through it, so a record lands the same way either way.
type RecordWriterImpl struct {
	records ports.RecordRepository
}

// NewRecordWriter creates a new RecordWriterImpl.
func NewRecordWriter(records ports.RecordRepository) *RecordWriterImpl {
	return &RecordWriterImpl{records: records}
}

// Write decodes raw and upserts it by (tenant, remote id).
func (w *RecordWriterImpl) Write(ctx context.Context, resource domain.Resource, tenantID uuid.UUID, raw []byte) (domain.Record, error) {
	rec, err := domain.DecodeRecord(resource, tenantID, raw)
	if err != nil {
		return nil, err
	}

	switch r := rec.(type) {
	case *domain.Product:
		err = w.records.UpsertProduct(ctx, r)
	case *domain.Customer:
		err = w.records.UpsertCustomer(ctx, r)
	case *domain.Order:
		err = w.records.UpsertOrder(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownResource, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s %s: %w", resource, rec.Key(), err)
	}
	return rec, nil
}
