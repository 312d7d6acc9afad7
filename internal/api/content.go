package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

type taskOutput struct {
	Status int
	Body   model.Task `json:"body"`
}

func registerTasks(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Store task content by hash",
		Description:   "A hash that is already stored returns the existing task unchanged.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		if s.content == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "read_only", "content writes are disabled", nil)
		}
		hash, err := normalizeTaskHash(input.Body.TaskHash)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		if strings.TrimSpace(input.Body.Description) == "" {
			return nil, badRequest("description is required")
		}
		criteria, err := rawJSON(input.Body.Criteria)
		if err != nil {
			return nil, badRequest("invalid criteria: " + err.Error())
		}
		metadata, err := rawJSON(input.Body.Metadata)
		if err != nil {
			return nil, badRequest("invalid metadata: " + err.Error())
		}

		res, err := s.content.PutTask(ctx, model.Task{
			Hash:        hash,
			Description: input.Body.Description,
			Criteria:    criteria,
			Metadata:    metadata,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		task, err := s.reader.GetTask(ctx, hash)
		if err != nil {
			return nil, s.handleError(err)
		}
		status := http.StatusCreated
		if res != storage.Applied {
			status = http.StatusOK
		}
		return &taskOutput{Status: status, Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{hash}",
		Summary:     "Get task content",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Hash string `path:"hash"`
	}) (*struct {
		Body model.Task `json:"body"`
	}, error) {
		hash, err := normalizeTaskHash(input.Hash)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		task, err := s.reader.GetTask(ctx, hash)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body model.Task `json:"body"`
		}{Body: task}, nil
	})
}

func registerDisputes(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-dispute-reason",
		Method:        http.MethodPost,
		Path:          "/disputes",
		Summary:       "Record the reason for an on-chain dispute",
		Description:   "The reason is attached to the open dispute, or held until the DisputeRaised event is indexed.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body DisputeReasonRequest `json:"body"`
	}) (*struct {
		Body DisputeReasonResponse `json:"body"`
	}, error) {
		if s.content == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "read_only", "content writes are disabled", nil)
		}
		id := firstNonEmpty(input.Body.EscrowAddress, input.Body.EscrowAddressAlt)
		if id == "" {
			return nil, badRequest("escrow_address is required")
		}
		reason := strings.TrimSpace(input.Body.Reason)
		if reason == "" {
			return nil, badRequest("reason is required")
		}
		key, err := escrowKey(input.Body.Chain, id)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		raisedBy := normalizeAgent(key.Chain, firstNonEmpty(input.Body.RaisedBy, input.Body.RaisedByAlt))

		if err := s.content.RecordDisputeReason(ctx, key, raisedBy, reason); err != nil {
			return nil, s.handleError(err)
		}
		s.logger.Info("dispute reason recorded", zap.String("escrow", key.String()))
		return &struct {
			Body DisputeReasonResponse `json:"body"`
		}{Body: DisputeReasonResponse{
			Chain:         key.Chain,
			EscrowAddress: key.ID,
			RaisedBy:      raisedBy,
			Reason:        reason,
		}}, nil
	})
}
