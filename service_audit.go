package authzkit

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// AUDIT TRAIL
// ============================================================================

// writeAudit appends one audit record inside the mutation's transaction.
// A failed append surfaces as ErrAuditWriteFailed, which rolls the whole
// mutation back: a privilege change never commits unaudited.
func (s *Service) writeAudit(ctx context.Context, tx dbkit.IDB, record *AuditRecord) error {
	ac := GetAuditContext(ctx)
	if record.ActorID == "" {
		record.ActorID = ac.ActorID
	}
	record.IPAddress = ac.IPAddress
	record.UserAgent = ac.UserAgent
	record.RequestID = ac.RequestID

	result, err := tx.NewInsert().Model(record).Exec(ctx)
	err = dbkit.WithErr(result, err, "WriteAudit").Err()
	if err != nil {
		s.txMonitor.recordAuditFailure()
		return NewError(ErrAuditWriteFailed, "could not append audit record").
			WithActor(record.ActorID)
	}
	return nil
}

// AuditLog retrieves audit records with optional filters, newest first.
func (s *Service) AuditLog(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	var records []AuditRecord
	q := s.db.NewSelect().Model(&records)
	if filter.OrganizationID != "" {
		q = q.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.ResourceType != "" {
		q = q.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	err := dbkit.WithErr1(q.Scan(ctx), "AuditLog").Err()
	if err != nil {
		return nil, err
	}

	return records, nil
}

// CountAuditRecords returns the number of audit records matching a resource.
// Useful for verifying that every mutation produced exactly one record.
func (s *Service) CountAuditRecords(ctx context.Context, resourceType, resourceID string) (int, error) {
	return dbkit.Count[AuditRecord](ctx, s.db, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID)
	})
}
