package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

func (s *Store) GetEscrow(_ context.Context, key model.EscrowKey) (model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	escrow, ok := s.escrows[key]
	if !ok {
		return model.Escrow{}, fmt.Errorf("escrow %s: %w", key, storage.ErrNotFound)
	}
	return *escrow, nil
}

// ListEscrows orders by creation time, newest first, then by id.
func (s *Store) ListEscrows(_ context.Context, filter storage.EscrowFilter) ([]model.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Escrow, 0)
	for _, escrow := range s.escrows {
		if filter.Chain != "" && escrow.Chain != filter.Chain {
			continue
		}
		if filter.Status != "" && escrow.Status != filter.Status {
			continue
		}
		if filter.Client != "" && escrow.Client != filter.Client {
			continue
		}
		if filter.Provider != "" && escrow.Provider != filter.Provider {
			continue
		}
		if filter.Agent != "" && escrow.Client != filter.Agent && escrow.Provider != filter.Agent {
			continue
		}
		out = append(out, *escrow)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *Store) ListProofs(_ context.Context, key model.EscrowKey) ([]model.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]model.Proof(nil), s.proofs[key]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if out == nil {
		out = []model.Proof{}
	}
	return out, nil
}

func (s *Store) ListDisputes(_ context.Context, key model.EscrowKey) ([]model.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Dispute, 0)
	for _, d := range s.disputes {
		if d.Key() == key {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out, nil
}

func (s *Store) GetTask(_ context.Context, hash string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[hash]
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", hash, storage.ErrNotFound)
	}
	return task, nil
}

func (s *Store) GetAgentStats(_ context.Context, chain model.Chain, agent string) (model.AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[agentKey{chain: chain, agent: agent}]
	if !ok {
		return model.AgentStats{}, fmt.Errorf("agent %s:%s: %w", chain, agent, storage.ErrNotFound)
	}
	out := *st
	out.Derive()
	return out, nil
}

func (s *Store) GetProtocolConfig(_ context.Context, chain model.Chain) (model.ProtocolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[chain]
	if !ok {
		return model.ProtocolConfig{}, fmt.Errorf("config %s: %w", chain, storage.ErrNotFound)
	}
	return cfg, nil
}

func (s *Store) StatusTotals(_ context.Context) ([]model.StatusTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		chain  model.Chain
		status model.Status
	}
	totals := make(map[bucket]*model.StatusTotal)
	for _, escrow := range s.escrows {
		b := bucket{chain: escrow.Chain, status: escrow.Status}
		t, ok := totals[b]
		if !ok {
			t = &model.StatusTotal{Chain: escrow.Chain, Status: escrow.Status}
			totals[b] = t
		}
		t.Count++
		t.Volume = t.Volume.Add(escrow.Amount)
	}

	out := make([]model.StatusTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

func (s *Store) EscrowPoints(_ context.Context, since time.Time) ([]model.EscrowPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EscrowPoint, 0)
	for _, escrow := range s.escrows {
		recent := !escrow.CreatedAt.Before(since) || (escrow.CompletedAt != nil && !escrow.CompletedAt.Before(since))
		if !recent {
			continue
		}
		out = append(out, model.EscrowPoint{
			Chain:       escrow.Chain,
			Status:      escrow.Status,
			Amount:      escrow.Amount,
			CreatedAt:   escrow.CreatedAt,
			CompletedAt: escrow.CompletedAt,
		})
	}
	return out, nil
}

func (s *Store) TopAgents(_ context.Context, limit int) ([]model.AgentVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AgentVolume, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, model.AgentVolume{
			Chain:        st.Chain,
			Agent:        st.Agent,
			TotalVolume:  st.TotalVolume,
			TotalEscrows: st.TotalEscrows,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalVolume.Cmp(out[j].TotalVolume); c != 0 {
			return c > 0
		}
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Agent < out[j].Agent
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RebuildAgentStats replaces the cache with counts derived from final
// escrow statuses.
func (s *Store) RebuildAgentStats(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = make(map[agentKey]*model.AgentStats)
	for _, escrow := range s.escrows {
		for _, agent := range parties(escrow.Client, escrow.Provider) {
			st := s.agent(escrow.Chain, agent)
			st.TotalEscrows++
			st.TotalVolume = st.TotalVolume.Add(escrow.Amount)
			switch escrow.Status {
			case model.StatusCompleted:
				st.CompletedEscrows++
				if escrow.CompletedAt != nil {
					st.CompletionSeconds += completionSeconds(escrow.CreatedAt, *escrow.CompletedAt)
				}
			case model.StatusDisputed, model.StatusResolved:
				st.DisputedEscrows++
			case model.StatusExpired:
				st.ExpiredEscrows++
			}
			touch(st, escrow.UpdatedAt)
		}
	}
	return len(s.stats), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
