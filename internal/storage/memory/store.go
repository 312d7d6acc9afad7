// Package memory is an in-process projection store with the same write
// semantics as the Postgres store. It backs `--store memory` and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

type agentKey struct {
	chain model.Chain
	agent string
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	escrows   map[model.EscrowKey]*model.Escrow
	proofs    map[model.EscrowKey][]model.Proof
	proofRefs map[string]struct{}
	disputes  []*model.Dispute
	reasons   map[model.EscrowKey]string
	tasks     map[string]model.Task
	stats     map[agentKey]*model.AgentStats
	configs   map[model.Chain]model.ProtocolConfig
	cursors   map[string]model.Cursor

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		escrows:   make(map[model.EscrowKey]*model.Escrow),
		proofs:    make(map[model.EscrowKey][]model.Proof),
		proofRefs: make(map[string]struct{}),
		reasons:   make(map[model.EscrowKey]string),
		tasks:     make(map[string]model.Task),
		stats:     make(map[agentKey]*model.AgentStats),
		configs:   make(map[model.Chain]model.ProtocolConfig),
		cursors:   make(map[string]model.Cursor),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// InsertEscrow keeps the first delivered creation values.
func (s *Store) InsertEscrow(_ context.Context, escrow model.Escrow) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escrow.Key()
	if _, ok := s.escrows[key]; ok {
		return storage.Unchanged, nil
	}
	if escrow.Status == "" {
		escrow.Status = model.StatusAwaitingProvider
	}
	if escrow.UpdatedAt.IsZero() {
		escrow.UpdatedAt = escrow.CreatedAt
	}
	if escrow.Amount == "" {
		escrow.Amount = "0"
	}
	stored := escrow
	s.escrows[key] = &stored

	for _, agent := range parties(escrow.Client, escrow.Provider) {
		st := s.agent(escrow.Chain, agent)
		st.TotalEscrows++
		st.TotalVolume = st.TotalVolume.Add(escrow.Amount)
		touch(st, escrow.CreatedAt)
	}
	return storage.Applied, nil
}

func (s *Store) UpdateStatus(_ context.Context, update storage.StatusUpdate) (storage.Result, model.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, ok := s.escrows[update.Key]
	if !ok {
		return storage.Rejected, "", fmt.Errorf("escrow %s: %w", update.Key, storage.ErrNotFound)
	}
	current := escrow.Status
	switch model.CheckTransition(current, update.To) {
	case model.TransitionNoop:
		return storage.Unchanged, current, nil
	case model.TransitionReject:
		return storage.Rejected, current, nil
	}

	escrow.Status = update.To
	if !update.At.IsZero() && update.At.After(escrow.UpdatedAt) {
		escrow.UpdatedAt = update.At
	}
	if update.To == model.StatusCompleted && escrow.CompletedAt == nil {
		at := update.At
		escrow.CompletedAt = &at
	}

	for _, agent := range parties(escrow.Client, escrow.Provider) {
		st := s.agent(escrow.Chain, agent)
		switch update.To {
		case model.StatusCompleted:
			st.CompletedEscrows++
			st.CompletionSeconds += completionSeconds(escrow.CreatedAt, *escrow.CompletedAt)
		case model.StatusDisputed:
			st.DisputedEscrows++
		case model.StatusExpired:
			st.ExpiredEscrows++
		}
		touch(st, update.At)
	}
	return storage.Applied, update.To, nil
}

func (s *Store) AppendProof(_ context.Context, proof model.Proof) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := string(proof.Chain) + "|" + proof.EventRef
	if _, ok := s.proofRefs[ref]; ok {
		return storage.Unchanged, nil
	}
	s.proofRefs[ref] = struct{}{}
	key := model.EscrowKey{Chain: proof.Chain, ID: proof.EscrowID}
	s.proofs[key] = append(s.proofs[key], proof)
	return storage.Applied, nil
}

func (s *Store) InsertDispute(_ context.Context, dispute model.Dispute) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.disputes {
		if d.ID == dispute.ID {
			return storage.Unchanged, nil
		}
	}
	key := dispute.Key()
	if dispute.Reason == "" {
		if reason, ok := s.reasons[key]; ok {
			dispute.Reason = reason
			delete(s.reasons, key)
		}
	}
	stored := dispute
	s.disputes = append(s.disputes, &stored)
	return storage.Applied, nil
}

// ResolveDispute closes the latest open dispute for the escrow.
func (s *Store) ResolveDispute(_ context.Context, res model.Resolution) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.latestDispute(res.Key)
	if latest == nil {
		return storage.Rejected, fmt.Errorf("dispute for %s: %w", res.Key, storage.ErrNotFound)
	}
	if latest.ResolvedAt != nil {
		return storage.Unchanged, nil
	}
	at := res.ResolvedAt
	latest.ResolvedAt = &at
	latest.ResolvedBy = res.Arbitrator
	if latest.Ruling == nil {
		ruling := res.Ruling
		latest.Ruling = &ruling
	}
	if latest.SettlementTx == "" {
		latest.SettlementTx = res.TxRef
	}
	return storage.Applied, nil
}

func (s *Store) PutProtocolConfig(_ context.Context, cfg model.ProtocolConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Chain] = cfg
	return nil
}

func (s *Store) PutTask(_ context.Context, task model.Task) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.Hash]; ok {
		return storage.Unchanged, nil
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = s.now()
	}
	s.tasks[task.Hash] = task
	return storage.Applied, nil
}

// RecordDisputeReason attaches a reason to the open dispute, or holds it until
// the dispute event is indexed.
func (s *Store) RecordDisputeReason(_ context.Context, key model.EscrowKey, raisedBy, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := s.latestDispute(key); latest != nil && latest.ResolvedAt == nil && latest.Reason == "" {
		latest.Reason = reason
		return nil
	}
	s.reasons[key] = reason
	return nil
}

func (s *Store) PendingDisputes(_ context.Context, limit int) ([]model.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Dispute, 0)
	for _, d := range s.disputes {
		if d.Submitted || d.ResolvedAt != nil || d.NeedsAttention {
			continue
		}
		escrow, ok := s.escrows[d.Key()]
		if !ok || escrow.Status != model.StatusDisputed {
			continue
		}
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkDisputeSubmitted(_ context.Context, id string, verdict model.Verdict, txRef string, at time.Time) (storage.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.dispute(id)
	if d == nil {
		return storage.Rejected, fmt.Errorf("dispute %s: %w", id, storage.ErrNotFound)
	}
	if d.Submitted {
		return storage.Unchanged, nil
	}
	ruling := verdict.Ruling
	confidence := verdict.Confidence
	d.Ruling = &ruling
	d.Confidence = &confidence
	d.Rationale = verdict.Rationale
	d.Submitted = true
	d.SubmittedAt = &at
	d.SettlementTx = txRef
	d.LastError = ""
	return storage.Applied, nil
}

func (s *Store) RecordDisputeFailure(_ context.Context, id string, message string, maxFailures int, permanent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.dispute(id)
	if d == nil {
		return fmt.Errorf("dispute %s: %w", id, storage.ErrNotFound)
	}
	d.Failures++
	d.LastError = message
	if permanent || (maxFailures > 0 && d.Failures >= maxFailures) {
		d.NeedsAttention = true
	}
	return nil
}

func (s *Store) LoadCursor(_ context.Context, name string) (model.Cursor, bool, error) {
	if name == "" {
		return model.Cursor{}, false, fmt.Errorf("cursor name required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[name]
	return c, ok, nil
}

func (s *Store) SaveCursor(_ context.Context, name string, cursor model.Cursor) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor.UpdatedAt = s.now()
	s.cursors[name] = cursor
	return nil
}

func (s *Store) agent(chain model.Chain, agent string) *model.AgentStats {
	key := agentKey{chain: chain, agent: agent}
	st, ok := s.stats[key]
	if !ok {
		st = &model.AgentStats{Chain: chain, Agent: agent}
		s.stats[key] = st
	}
	return st
}

func (s *Store) dispute(id string) *model.Dispute {
	for _, d := range s.disputes {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// latestDispute picks the newest raised_at; ties go to the later insert,
// matching the postgres seq order.
func (s *Store) latestDispute(key model.EscrowKey) *model.Dispute {
	var latest *model.Dispute
	for _, d := range s.disputes {
		if d.Key() != key {
			continue
		}
		if latest == nil || !d.RaisedAt.Before(latest.RaisedAt) {
			latest = d
		}
	}
	return latest
}

func parties(client, provider string) []string {
	out := make([]string, 0, 2)
	if client != "" {
		out = append(out, client)
	}
	if provider != "" && provider != client {
		out = append(out, provider)
	}
	return out
}

func touch(st *model.AgentStats, at time.Time) {
	if at.IsZero() {
		return
	}
	if st.LastActive == nil || at.After(*st.LastActive) {
		t := at
		st.LastActive = &t
	}
}

func completionSeconds(created, completed time.Time) int64 {
	secs := int64(completed.Sub(created) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
