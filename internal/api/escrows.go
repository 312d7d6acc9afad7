package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// PageParams is shared by list endpoints.
type PageParams struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Page size, default 50"`
	Offset int `query:"offset" minimum:"0"`
}

type escrowPath struct {
	ID    string `path:"id" doc:"Escrow account (Solana) or escrow id (Base)"`
	Chain string `query:"chain" doc:"solana or base; inferred from the id when omitted"`
}

type escrowListOutput struct {
	Body []model.Escrow `json:"body"`
}

func registerEscrows(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-escrows",
		Method:      http.MethodGet,
		Path:        "/escrows",
		Summary:     "List escrows",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Chain    string `query:"chain"`
		Status   string `query:"status"`
		Client   string `query:"client"`
		Provider string `query:"provider"`
		PageParams
	}) (*escrowListOutput, error) {
		filter := storage.EscrowFilter{
			Limit:  clampLimit(input.Limit),
			Offset: input.Offset,
		}
		party := firstNonEmpty(input.Client, input.Provider)
		switch {
		case input.Chain != "":
			chain, err := model.ParseChain(input.Chain)
			if err != nil {
				return nil, badRequest(err.Error())
			}
			filter.Chain = chain
		case party != "":
			filter.Chain = model.InferChain(party)
		}
		if input.Status != "" {
			status, err := model.ParseStatus(input.Status)
			if err != nil {
				return nil, badRequest(err.Error())
			}
			filter.Status = status
		}
		if input.Client != "" {
			filter.Client = normalizeAgent(filter.Chain, input.Client)
		}
		if input.Provider != "" {
			filter.Provider = normalizeAgent(filter.Chain, input.Provider)
		}

		items, err := s.reader.ListEscrows(ctx, filter)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &escrowListOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-escrow",
		Method:      http.MethodGet,
		Path:        "/escrows/{id}",
		Summary:     "Get escrow with task and proofs",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *escrowPath) (*struct {
		Body EscrowDetail `json:"body"`
	}, error) {
		escrow, err := s.escrow(ctx, input)
		if err != nil {
			return nil, err
		}
		detail := EscrowDetail{Escrow: escrow}
		if escrow.TaskHash != "" {
			task, err := s.reader.GetTask(ctx, escrow.TaskHash)
			switch {
			case err == nil:
				detail.Task = &task
			case !errors.Is(err, storage.ErrNotFound):
				return nil, s.handleError(err)
			}
		}
		detail.Proofs, err = s.reader.ListProofs(ctx, escrow.Key())
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body EscrowDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-escrow-proofs",
		Method:      http.MethodGet,
		Path:        "/escrows/{id}/proof",
		Summary:     "List proofs submitted for an escrow",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *escrowPath) (*struct {
		Body []model.Proof `json:"body"`
	}, error) {
		escrow, err := s.escrow(ctx, input)
		if err != nil {
			return nil, err
		}
		proofs, err := s.reader.ListProofs(ctx, escrow.Key())
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body []model.Proof `json:"body"`
		}{Body: proofs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-escrow-dispute",
		Method:      http.MethodGet,
		Path:        "/escrows/{id}/dispute",
		Summary:     "Get the latest dispute of an escrow",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *escrowPath) (*struct {
		Body model.Dispute `json:"body"`
	}, error) {
		escrow, err := s.escrow(ctx, input)
		if err != nil {
			return nil, err
		}
		disputes, err := s.reader.ListDisputes(ctx, escrow.Key())
		if err != nil {
			return nil, s.handleError(err)
		}
		if len(disputes) == 0 {
			return nil, s.handleError(fmt.Errorf("dispute for escrow %s: %w", escrow.Key(), storage.ErrNotFound))
		}
		return &struct {
			Body model.Dispute `json:"body"`
		}{Body: disputes[len(disputes)-1]}, nil
	})
}

func (s *service) escrow(ctx context.Context, input *escrowPath) (model.Escrow, error) {
	key, err := escrowKey(input.Chain, input.ID)
	if err != nil {
		return model.Escrow{}, badRequest(err.Error())
	}
	escrow, err := s.reader.GetEscrow(ctx, key)
	if err != nil {
		return model.Escrow{}, s.handleError(err)
	}
	return escrow, nil
}

// AgentPath selects one agent in one chain namespace.
type AgentPath struct {
	ID    string `path:"id" doc:"Agent address"`
	Chain string `query:"chain" doc:"solana or base; inferred from the address when omitted"`
}

func registerAgents(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-agent-stats",
		Method:      http.MethodGet,
		Path:        "/agents/{id}/stats",
		Summary:     "Agent reputation stats",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *AgentPath) (*struct {
		Body model.AgentStats `json:"body"`
	}, error) {
		chain, err := chainFor(input.Chain, input.ID)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		stats, err := s.reader.GetAgentStats(ctx, chain, normalizeAgent(chain, input.ID))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body model.AgentStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agent-escrows",
		Method:      http.MethodGet,
		Path:        "/agents/{id}/escrows",
		Summary:     "Escrows where the agent is client or provider",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AgentPath
		Status string `query:"status"`
		PageParams
	}) (*escrowListOutput, error) {
		chain, err := chainFor(input.Chain, input.ID)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		filter := storage.EscrowFilter{
			Chain:  chain,
			Agent:  normalizeAgent(chain, input.ID),
			Limit:  clampLimit(input.Limit),
			Offset: input.Offset,
		}
		if input.Status != "" {
			status, err := model.ParseStatus(input.Status)
			if err != nil {
				return nil, badRequest(err.Error())
			}
			filter.Status = status
		}
		items, err := s.reader.ListEscrows(ctx, filter)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &escrowListOutput{Body: items}, nil
	})
}
