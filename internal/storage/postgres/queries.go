package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

type scanner interface {
	Scan(dest ...any) error
}

const escrowColumns = `
	chain, escrow_id, client, provider, arbitrator, token, amount::text,
	protocol_fee_bps, arbitrator_fee_bps, task_hash, verification_type,
	created_at, deadline, grace_period, completed_at, status,
	created_tx, created_position, updated_at`

func (s *Store) GetEscrow(ctx context.Context, key model.EscrowKey) (model.Escrow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE chain = $1 AND escrow_id = $2`,
		string(key.Chain), key.ID)
	escrow, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Escrow{}, fmt.Errorf("escrow %s: %w", key, storage.ErrNotFound)
		}
		return model.Escrow{}, err
	}
	return escrow, nil
}

func (s *Store) ListEscrows(ctx context.Context, filter storage.EscrowFilter) ([]model.Escrow, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.Chain != "" {
		add("chain = ?", string(filter.Chain))
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.Client != "" {
		add("client = ?", filter.Client)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Agent != "" {
		add("(client = ? OR provider = ?)", filter.Agent)
	}

	query := `SELECT ` + escrowColumns + ` FROM escrows`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limitArg(filter.Limit), max(filter.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC, chain, escrow_id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer rows.Close()

	out := make([]model.Escrow, 0)
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, escrow)
	}
	return out, rows.Err()
}

func (s *Store) ListProofs(ctx context.Context, key model.EscrowKey) ([]model.Proof, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, escrow_id, event_ref, submitter, proof_type, payload, submitted_at
		FROM proofs
		WHERE chain = $1 AND escrow_id = $2
		ORDER BY submitted_at, id
	`, string(key.Chain), key.ID)
	if err != nil {
		return nil, fmt.Errorf("list proofs %s: %w", key, err)
	}
	defer rows.Close()

	out := make([]model.Proof, 0)
	for rows.Next() {
		var (
			p            model.Proof
			chain, ptype string
		)
		if err := rows.Scan(&chain, &p.EscrowID, &p.EventRef, &p.Submitter, &ptype, &p.Payload, &p.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		p.Chain = model.Chain(chain)
		p.Type = model.ProofType(ptype)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListDisputes(ctx context.Context, key model.EscrowKey) ([]model.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes d
		WHERE d.chain = $1 AND d.escrow_id = $2
		ORDER BY d.raised_at, d.seq
	`, string(key.Chain), key.ID)
	if err != nil {
		return nil, fmt.Errorf("list disputes %s: %w", key, err)
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

func (s *Store) GetTask(ctx context.Context, hash string) (model.Task, error) {
	var (
		task               model.Task
		criteria, metadata []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT task_hash, description, criteria, metadata, created_at
		FROM tasks WHERE task_hash = $1
	`, hash).Scan(&task.Hash, &task.Description, &criteria, &metadata, &task.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Task{}, fmt.Errorf("task %s: %w", hash, storage.ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("get task %s: %w", hash, err)
	}
	task.Criteria = criteria
	task.Metadata = metadata
	return task, nil
}

func (s *Store) GetAgentStats(ctx context.Context, chain model.Chain, agent string) (model.AgentStats, error) {
	var (
		st     = model.AgentStats{Chain: chain, Agent: agent}
		volume string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT total_escrows, completed_escrows, disputed_escrows, expired_escrows,
			total_volume::text, completion_seconds, last_active
		FROM agent_stats WHERE chain = $1 AND agent = $2
	`, string(chain), agent).Scan(
		&st.TotalEscrows,
		&st.CompletedEscrows,
		&st.DisputedEscrows,
		&st.ExpiredEscrows,
		&volume,
		&st.CompletionSeconds,
		&st.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AgentStats{}, fmt.Errorf("agent %s:%s: %w", chain, agent, storage.ErrNotFound)
		}
		return model.AgentStats{}, fmt.Errorf("get agent stats: %w", err)
	}
	if st.TotalVolume, err = model.ParseAmount(volume); err != nil {
		return model.AgentStats{}, fmt.Errorf("agent %s:%s volume: %w", chain, agent, err)
	}
	st.Derive()
	return st, nil
}

func (s *Store) GetProtocolConfig(ctx context.Context, chain model.Chain) (model.ProtocolConfig, error) {
	var (
		cfg                        = model.ProtocolConfig{Chain: chain}
		protocolFee, arbitratorFee int32
		minAmount, maxAmount       string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT admin, fee_recipient, protocol_fee_bps, arbitrator_fee_bps,
			min_escrow_amount::text, max_escrow_amount::text, min_grace_period, max_deadline_seconds,
			paused, updated_at
		FROM protocol_config WHERE chain = $1
	`, string(chain)).Scan(
		&cfg.Admin,
		&cfg.FeeRecipient,
		&protocolFee,
		&arbitratorFee,
		&minAmount,
		&maxAmount,
		&cfg.MinGracePeriod,
		&cfg.MaxDeadlineSeconds,
		&cfg.Paused,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ProtocolConfig{}, fmt.Errorf("config %s: %w", chain, storage.ErrNotFound)
		}
		return model.ProtocolConfig{}, fmt.Errorf("get protocol config: %w", err)
	}
	cfg.ProtocolFeeBps = uint16(protocolFee)
	cfg.ArbitratorFeeBps = uint16(arbitratorFee)
	if cfg.MinEscrowAmount, err = model.ParseAmount(minAmount); err != nil {
		return model.ProtocolConfig{}, fmt.Errorf("config %s min amount: %w", chain, err)
	}
	if cfg.MaxEscrowAmount, err = model.ParseAmount(maxAmount); err != nil {
		return model.ProtocolConfig{}, fmt.Errorf("config %s max amount: %w", chain, err)
	}
	return cfg, nil
}

func (s *Store) StatusTotals(ctx context.Context) ([]model.StatusTotal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, status, count(*), COALESCE(sum(amount), 0)::text
		FROM escrows
		GROUP BY chain, status
		ORDER BY chain, status
	`)
	if err != nil {
		return nil, fmt.Errorf("status totals: %w", err)
	}
	defer rows.Close()

	out := make([]model.StatusTotal, 0)
	for rows.Next() {
		var (
			chain, status, volume string
			count                 int64
		)
		if err := rows.Scan(&chain, &status, &count, &volume); err != nil {
			return nil, fmt.Errorf("scan status total: %w", err)
		}
		amount, err := model.ParseAmount(volume)
		if err != nil {
			return nil, fmt.Errorf("status total volume: %w", err)
		}
		out = append(out, model.StatusTotal{
			Chain:  model.Chain(chain),
			Status: model.Status(status),
			Count:  count,
			Volume: amount,
		})
	}
	return out, rows.Err()
}

// EscrowPoints returns escrows created or completed at or after since.
func (s *Store) EscrowPoints(ctx context.Context, since time.Time) ([]model.EscrowPoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, status, amount::text, created_at, completed_at
		FROM escrows
		WHERE created_at >= $1 OR completed_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("escrow points: %w", err)
	}
	defer rows.Close()

	out := make([]model.EscrowPoint, 0)
	for rows.Next() {
		var (
			p                     model.EscrowPoint
			chain, status, amount string
		)
		if err := rows.Scan(&chain, &status, &amount, &p.CreatedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan escrow point: %w", err)
		}
		p.Chain = model.Chain(chain)
		p.Status = model.Status(status)
		if p.Amount, err = model.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("escrow point amount: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) TopAgents(ctx context.Context, limit int) ([]model.AgentVolume, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain, agent, total_volume::text, total_escrows
		FROM agent_stats
		ORDER BY total_volume DESC, chain, agent
		LIMIT $1
	`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("top agents: %w", err)
	}
	defer rows.Close()

	out := make([]model.AgentVolume, 0)
	for rows.Next() {
		var (
			a             model.AgentVolume
			chain, volume string
		)
		if err := rows.Scan(&chain, &a.Agent, &volume, &a.TotalEscrows); err != nil {
			return nil, fmt.Errorf("scan top agent: %w", err)
		}
		a.Chain = model.Chain(chain)
		if a.TotalVolume, err = model.ParseAmount(volume); err != nil {
			return nil, fmt.Errorf("top agent volume: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RebuildAgentStats recomputes agent_stats from the final escrow statuses
// inside one transaction, so readers never see an empty cache.
func (s *Store) RebuildAgentStats(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM agent_stats`); err != nil {
		return 0, fmt.Errorf("clear agent stats: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO agent_stats (
			chain, agent, total_escrows, completed_escrows, disputed_escrows, expired_escrows,
			total_volume, completion_seconds, last_active
		)
		SELECT e.chain, p.agent,
			count(*),
			count(*) FILTER (WHERE e.status = 'Completed'),
			count(*) FILTER (WHERE e.status IN ('Disputed', 'Resolved')),
			count(*) FILTER (WHERE e.status = 'Expired'),
			COALESCE(sum(e.amount), 0),
			COALESCE(sum(GREATEST(FLOOR(EXTRACT(EPOCH FROM (e.completed_at - e.created_at))), 0)::BIGINT)
				FILTER (WHERE e.status = 'Completed' AND e.completed_at IS NOT NULL), 0)::BIGINT,
			max(e.updated_at)
		FROM escrows e
		CROSS JOIN LATERAL (
			SELECT DISTINCT v.agent FROM (VALUES (e.client), (e.provider)) AS v(agent) WHERE v.agent <> ''
		) AS p
		GROUP BY e.chain, p.agent
	`)
	if err != nil {
		return 0, fmt.Errorf("rebuild agent stats: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanEscrow(row scanner) (model.Escrow, error) {
	var (
		e                           model.Escrow
		chain, verification, status string
		amount                      string
		position                    int64
		protocolFee, arbitratorFee  int32
	)
	err := row.Scan(
		&chain,
		&e.ID,
		&e.Client,
		&e.Provider,
		&e.Arbitrator,
		&e.Token,
		&amount,
		&protocolFee,
		&arbitratorFee,
		&e.TaskHash,
		&verification,
		&e.CreatedAt,
		&e.Deadline,
		&e.GracePeriod,
		&e.CompletedAt,
		&status,
		&e.CreatedTx,
		&position,
		&e.UpdatedAt,
	)
	if err != nil {
		return model.Escrow{}, err
	}
	e.Chain = model.Chain(chain)
	if e.Amount, err = model.ParseAmount(amount); err != nil {
		return model.Escrow{}, fmt.Errorf("escrow %s amount: %w", e.ID, err)
	}
	e.ProtocolFeeBps = uint16(protocolFee)
	e.ArbitratorFeeBps = uint16(arbitratorFee)
	e.Verification = model.VerificationType(verification)
	e.Status = model.Status(status)
	e.CreatedPosition = uint64(position)
	return e, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as
// LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
