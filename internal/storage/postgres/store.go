package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// Store provides Postgres persistence for the escrow projection.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore opens a pool. maxConns <= 0 keeps the pgxpool default.
func NewStore(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertEscrow inserts the escrow and bumps both parties' stats in one
// statement. A second delivery for the same key changes nothing.
func (s *Store) InsertEscrow(ctx context.Context, escrow model.Escrow) (storage.Result, error) {
	status := escrow.Status
	if status == "" {
		status = model.StatusAwaitingProvider
	}

	var inserted int64
	err := s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO escrows (
				chain, escrow_id, client, provider, arbitrator, token, amount,
				protocol_fee_bps, arbitrator_fee_bps, task_hash, verification_type,
				created_at, deadline, grace_period, status, status_rank,
				created_tx, created_position, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$12)
			ON CONFLICT (chain, escrow_id) DO NOTHING
			RETURNING chain, client, provider, amount, created_at
		), parties AS (
			SELECT DISTINCT ins.chain, p.agent, ins.amount, ins.created_at
			FROM ins CROSS JOIN LATERAL (VALUES (ins.client), (ins.provider)) AS p(agent)
			WHERE p.agent <> ''
		), stats AS (
			INSERT INTO agent_stats (chain, agent, total_escrows, total_volume, last_active)
			SELECT chain, agent, 1, amount, created_at FROM parties
			ON CONFLICT (chain, agent) DO UPDATE SET
				total_escrows = agent_stats.total_escrows + 1,
				total_volume = agent_stats.total_volume + EXCLUDED.total_volume,
				last_active = GREATEST(agent_stats.last_active, EXCLUDED.last_active)
		)
		SELECT count(*) FROM ins
	`,
		string(escrow.Chain),
		escrow.ID,
		escrow.Client,
		escrow.Provider,
		escrow.Arbitrator,
		escrow.Token,
		escrow.Amount.String(),
		int32(escrow.ProtocolFeeBps),
		int32(escrow.ArbitratorFeeBps),
		escrow.TaskHash,
		string(escrow.Verification),
		escrow.CreatedAt,
		escrow.Deadline,
		escrow.GracePeriod,
		string(status),
		int16(status.Rank()),
		escrow.CreatedTx,
		int64(escrow.CreatedPosition),
	).Scan(&inserted)
	if err != nil {
		return storage.Rejected, fmt.Errorf("insert escrow %s: %w", escrow.Key(), err)
	}
	if inserted == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

// UpdateStatus advances the status only when the target ranks strictly
// higher than the stored one, and folds the matching counter into
// agent_stats in the same statement.
func (s *Store) UpdateStatus(ctx context.Context, update storage.StatusUpdate) (storage.Result, model.Status, error) {
	var (
		prev    *string
		updated int64
	)
	err := s.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT status FROM escrows WHERE chain = $1 AND escrow_id = $2
		), upd AS (
			UPDATE escrows SET
				status = $3,
				status_rank = $4,
				completed_at = CASE WHEN $3 = 'Completed' THEN COALESCE(completed_at, $5) ELSE completed_at END,
				updated_at = GREATEST(updated_at, $5),
				last_event_ref = $6,
				indexed_at = now()
			WHERE chain = $1 AND escrow_id = $2 AND status_rank < $4
			RETURNING chain, client, provider, created_at, completed_at
		), parties AS (
			SELECT DISTINCT upd.chain, p.agent, upd.created_at, upd.completed_at
			FROM upd CROSS JOIN LATERAL (VALUES (upd.client), (upd.provider)) AS p(agent)
			WHERE p.agent <> ''
		), stats AS (
			INSERT INTO agent_stats (
				chain, agent, completed_escrows, disputed_escrows, expired_escrows, completion_seconds, last_active
			)
			SELECT chain, agent,
				CASE WHEN $3 = 'Completed' THEN 1 ELSE 0 END,
				CASE WHEN $3 = 'Disputed' THEN 1 ELSE 0 END,
				CASE WHEN $3 = 'Expired' THEN 1 ELSE 0 END,
				CASE WHEN $3 = 'Completed'
					THEN GREATEST(FLOOR(EXTRACT(EPOCH FROM (completed_at - created_at))), 0)::BIGINT
					ELSE 0 END,
				$5
			FROM parties
			ON CONFLICT (chain, agent) DO UPDATE SET
				completed_escrows = agent_stats.completed_escrows + EXCLUDED.completed_escrows,
				disputed_escrows = agent_stats.disputed_escrows + EXCLUDED.disputed_escrows,
				expired_escrows = agent_stats.expired_escrows + EXCLUDED.expired_escrows,
				completion_seconds = agent_stats.completion_seconds + EXCLUDED.completion_seconds,
				last_active = GREATEST(agent_stats.last_active, EXCLUDED.last_active)
		)
		SELECT (SELECT status FROM prev), (SELECT count(*) FROM upd)
	`,
		string(update.Key.Chain),
		update.Key.ID,
		string(update.To),
		int16(update.To.Rank()),
		update.At,
		update.EventRef,
	).Scan(&prev, &updated)
	if err != nil {
		return storage.Rejected, "", fmt.Errorf("update status %s: %w", update.Key, err)
	}
	if prev == nil {
		return storage.Rejected, "", fmt.Errorf("escrow %s: %w", update.Key, storage.ErrNotFound)
	}
	if updated > 0 {
		return storage.Applied, update.To, nil
	}
	current := model.Status(*prev)
	if model.CheckTransition(current, update.To) == model.TransitionNoop {
		return storage.Unchanged, current, nil
	}
	return storage.Rejected, current, nil
}

func (s *Store) AppendProof(ctx context.Context, proof model.Proof) (storage.Result, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO proofs (chain, escrow_id, event_ref, submitter, proof_type, payload, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chain, event_ref) DO NOTHING
	`,
		string(proof.Chain),
		proof.EscrowID,
		proof.EventRef,
		proof.Submitter,
		string(proof.Type),
		proof.Payload,
		proof.SubmittedAt,
	)
	if err != nil {
		return storage.Rejected, fmt.Errorf("append proof %s: %w", proof.EventRef, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

// PutProtocolConfig overwrites the chain's config row wholesale.
func (s *Store) PutProtocolConfig(ctx context.Context, cfg model.ProtocolConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO protocol_config (
			chain, admin, fee_recipient, protocol_fee_bps, arbitrator_fee_bps,
			min_escrow_amount, max_escrow_amount, min_grace_period, max_deadline_seconds,
			paused, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (chain) DO UPDATE SET
			admin = EXCLUDED.admin,
			fee_recipient = EXCLUDED.fee_recipient,
			protocol_fee_bps = EXCLUDED.protocol_fee_bps,
			arbitrator_fee_bps = EXCLUDED.arbitrator_fee_bps,
			min_escrow_amount = EXCLUDED.min_escrow_amount,
			max_escrow_amount = EXCLUDED.max_escrow_amount,
			min_grace_period = EXCLUDED.min_grace_period,
			max_deadline_seconds = EXCLUDED.max_deadline_seconds,
			paused = EXCLUDED.paused,
			updated_at = EXCLUDED.updated_at
	`,
		string(cfg.Chain),
		cfg.Admin,
		cfg.FeeRecipient,
		int32(cfg.ProtocolFeeBps),
		int32(cfg.ArbitratorFeeBps),
		cfg.MinEscrowAmount.String(),
		cfg.MaxEscrowAmount.String(),
		cfg.MinGracePeriod,
		cfg.MaxDeadlineSeconds,
		cfg.Paused,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put protocol config %s: %w", cfg.Chain, err)
	}
	return nil
}

func (s *Store) PutTask(ctx context.Context, task model.Task) (storage.Result, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (task_hash, description, criteria, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_hash) DO NOTHING
	`, task.Hash, task.Description, nullJSON(task.Criteria), nullJSON(task.Metadata))
	if err != nil {
		return storage.Rejected, fmt.Errorf("put task %s: %w", task.Hash, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.Unchanged, nil
	}
	return storage.Applied, nil
}

func nullJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
