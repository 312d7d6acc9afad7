package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

func registerAnalytics(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Totals and rates per chain",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body aggregate.Stats `json:"body"`
	}, error) {
		stats, err := s.analytics.Stats(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body aggregate.Stats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics",
		Method:      http.MethodGet,
		Path:        "/analytics",
		Summary:     "Totals, weekly trend, daily volume and top agents",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Weeks int `query:"weeks" minimum:"0" maximum:"104" doc:"Weekly trend buckets, default 8"`
		Days  int `query:"days" minimum:"0" maximum:"365" doc:"Daily volume buckets, default 30"`
		Top   int `query:"top" minimum:"0" maximum:"100" doc:"Top agents by volume, default 10"`
	}) (*struct {
		Body aggregate.Analytics `json:"body"`
	}, error) {
		report, err := s.analytics.Analytics(ctx, aggregate.Options{
			Weeks: input.Weeks,
			Days:  input.Days,
			Top:   input.Top,
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body aggregate.Analytics `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "protocol-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Latest protocol config per chain",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Chain string `query:"chain" doc:"solana or base; every indexed chain when omitted"`
	}) (*struct {
		Body []model.ProtocolConfig `json:"body"`
	}, error) {
		chains := model.Chains
		if input.Chain != "" {
			chain, err := model.ParseChain(input.Chain)
			if err != nil {
				return nil, badRequest(err.Error())
			}
			chains = []model.Chain{chain}
		}

		out := make([]model.ProtocolConfig, 0, len(chains))
		for _, chain := range chains {
			cfg, err := s.reader.GetProtocolConfig(ctx, chain)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) && input.Chain == "" {
					continue
				}
				return nil, s.handleError(err)
			}
			out = append(out, cfg)
		}
		return &struct {
			Body []model.ProtocolConfig `json:"body"`
		}{Body: out}, nil
	})
}
