package postgres

import (
	"context"
	"fmt"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

const disputeColumns = `
	d.id, d.chain, d.escrow_id, d.event_ref, d.raised_by, d.reason, d.raised_at,
	d.ruling_type, d.client_bps, d.provider_bps, d.confidence, d.rationale,
	d.submitted, d.submitted_at, d.settlement_tx, d.resolved_at, d.resolved_by,
	d.submit_failures, d.last_error, d.needs_attention`

// InsertDispute records a dispute occurrence and claims any reason that was
// posted before the event was indexed.
func (s *Store) InsertDispute(ctx context.Context, dispute model.Dispute) (storage.Result, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH held AS (
			DELETE FROM dispute_reasons
			WHERE chain = $2 AND escrow_id = $3 AND $6 = ''
				AND NOT EXISTS (SELECT 1 FROM disputes WHERE id = $1)
			RETURNING reason
		)
		INSERT INTO disputes (id, chain, escrow_id, event_ref, raised_by, reason, raised_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, ''), (SELECT reason FROM held), ''), $7)
		ON CONFLICT (id) DO NOTHING
	`,
		dispute.ID,
		string(dispute.Chain),
		dispute.EscrowID,
		dispute.EventRef,
		dispute.RaisedBy,
		dispute.Reason,
		dispute.RaisedAt,
	)
	if err != nil {
		return storage.Rejected, fmt.Errorf("insert dispute %s: %w", dispute.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

// ResolveDispute closes the latest dispute on the escrow. A ruling or
// settlement tx already recorded by the coordinator is kept.
func (s *Store) ResolveDispute(ctx context.Context, res model.Resolution) (storage.Result, error) {
	var found, updated int64
	err := s.pool.QueryRow(ctx, `
		WITH latest AS (
			SELECT id FROM disputes
			WHERE chain = $1 AND escrow_id = $2
			ORDER BY raised_at DESC, seq DESC
			LIMIT 1
		), upd AS (
			UPDATE disputes d SET
				resolved_at = $3,
				resolved_by = $4,
				ruling_type = CASE WHEN d.ruling_type = '' THEN $5 ELSE d.ruling_type END,
				client_bps = CASE WHEN d.ruling_type = '' THEN $6 ELSE d.client_bps END,
				provider_bps = CASE WHEN d.ruling_type = '' THEN $7 ELSE d.provider_bps END,
				settlement_tx = CASE WHEN d.settlement_tx = '' THEN $8 ELSE d.settlement_tx END
			FROM latest
			WHERE d.id = latest.id AND d.resolved_at IS NULL
			RETURNING d.id
		)
		SELECT (SELECT count(*) FROM latest), (SELECT count(*) FROM upd)
	`,
		string(res.Key.Chain),
		res.Key.ID,
		res.ResolvedAt,
		res.Arbitrator,
		string(res.Ruling.Kind),
		int32(res.Ruling.ClientBps),
		int32(res.Ruling.ProviderBps),
		res.TxRef,
	).Scan(&found, &updated)
	if err != nil {
		return storage.Rejected, fmt.Errorf("resolve dispute %s: %w", res.Key, err)
	}
	if found == 0 {
		return storage.Rejected, fmt.Errorf("dispute for %s: %w", res.Key, storage.ErrNotFound)
	}
	if updated == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

// RecordDisputeReason attaches the reason to the open dispute, or holds it
// in dispute_reasons until the dispute event arrives.
func (s *Store) RecordDisputeReason(ctx context.Context, key model.EscrowKey, raisedBy, reason string) error {
	_, err := s.pool.Exec(ctx, `
		WITH latest AS (
			SELECT id FROM disputes
			WHERE chain = $1 AND escrow_id = $2
			ORDER BY raised_at DESC, seq DESC
			LIMIT 1
		), upd AS (
			UPDATE disputes d SET reason = $4
			FROM latest
			WHERE d.id = latest.id AND d.resolved_at IS NULL AND d.reason = ''
			RETURNING d.id
		)
		INSERT INTO dispute_reasons (chain, escrow_id, raised_by, reason)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (SELECT 1 FROM upd)
		ON CONFLICT (chain, escrow_id) DO UPDATE SET
			raised_by = EXCLUDED.raised_by,
			reason = EXCLUDED.reason,
			recorded_at = now()
	`, string(key.Chain), key.ID, raisedBy, reason)
	if err != nil {
		return fmt.Errorf("record dispute reason %s: %w", key, err)
	}
	return nil
}

// PendingDisputes lists disputes the coordinator still owes a ruling,
// oldest first. Escrows that left Disputed are skipped.
func (s *Store) PendingDisputes(ctx context.Context, limit int) ([]model.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes d
		JOIN escrows e ON e.chain = d.chain AND e.escrow_id = d.escrow_id
		WHERE NOT d.submitted AND d.resolved_at IS NULL AND NOT d.needs_attention
			AND e.status = 'Disputed'
		ORDER BY d.raised_at, d.seq
		LIMIT $1
	`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("pending disputes: %w", err)
	}
	defer rows.Close()

	out := make([]model.Dispute, 0)
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) MarkDisputeSubmitted(ctx context.Context, id string, verdict model.Verdict, txRef string, at time.Time) (storage.Result, error) {
	var found, updated int64
	err := s.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM disputes WHERE id = $1
		), upd AS (
			UPDATE disputes SET
				ruling_type = $2,
				client_bps = $3,
				provider_bps = $4,
				confidence = $5,
				rationale = $6,
				submitted = true,
				submitted_at = $7,
				settlement_tx = $8,
				last_error = ''
			WHERE id = $1 AND NOT submitted
			RETURNING id
		)
		SELECT (SELECT count(*) FROM target), (SELECT count(*) FROM upd)
	`,
		id,
		string(verdict.Ruling.Kind),
		int32(verdict.Ruling.ClientBps),
		int32(verdict.Ruling.ProviderBps),
		verdict.Confidence,
		verdict.Rationale,
		at,
		txRef,
	).Scan(&found, &updated)
	if err != nil {
		return storage.Rejected, fmt.Errorf("mark dispute %s submitted: %w", id, err)
	}
	if found == 0 {
		return storage.Rejected, fmt.Errorf("dispute %s: %w", id, storage.ErrNotFound)
	}
	if updated == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

// RecordDisputeFailure counts a failed attempt. The dispute is parked for
// an operator once the failure is permanent or maxFailures is reached.
func (s *Store) RecordDisputeFailure(ctx context.Context, id string, message string, maxFailures int, permanent bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE disputes SET
			submit_failures = submit_failures + 1,
			last_error = $2,
			needs_attention = needs_attention OR $3 OR ($4 > 0 AND submit_failures + 1 >= $4)
		WHERE id = $1
	`, id, message, permanent, maxFailures)
	if err != nil {
		return fmt.Errorf("record dispute failure %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dispute %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanDispute(row scanner) (model.Dispute, error) {
	var (
		d                      model.Dispute
		chain, rulingType      string
		clientBps, providerBps int32
		failures               int32
	)
	err := row.Scan(
		&d.ID,
		&chain,
		&d.EscrowID,
		&d.EventRef,
		&d.RaisedBy,
		&d.Reason,
		&d.RaisedAt,
		&rulingType,
		&clientBps,
		&providerBps,
		&d.Confidence,
		&d.Rationale,
		&d.Submitted,
		&d.SubmittedAt,
		&d.SettlementTx,
		&d.ResolvedAt,
		&d.ResolvedBy,
		&failures,
		&d.LastError,
		&d.NeedsAttention,
	)
	if err != nil {
		return model.Dispute{}, fmt.Errorf("scan dispute: %w", err)
	}
	d.Chain = model.Chain(chain)
	d.Failures = int(failures)
	if rulingType != "" {
		d.Ruling = &model.Ruling{
			Kind:        model.RulingKind(rulingType),
			ClientBps:   uint16(clientBps),
			ProviderBps: uint16(providerBps),
		}
	}
	return d, nil
}
