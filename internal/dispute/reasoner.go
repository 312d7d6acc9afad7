package dispute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"escrowScope/internal/model"
)

// HTTPReasoner posts case packets to an external arbitration service.
type HTTPReasoner struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ Reasoner = (*HTTPReasoner)(nil)

func NewHTTPReasoner(url string, timeout time.Duration, logger *zap.Logger) *HTTPReasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPReasoner{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type verdictResponse struct {
	Ruling struct {
		Type           string  `json:"type"`
		ClientBps      *uint16 `json:"client_bps"`
		ClientBpsAlt   *uint16 `json:"clientBps"`
		ProviderBps    *uint16 `json:"provider_bps"`
		ProviderBpsAlt *uint16 `json:"providerBps"`
	} `json:"ruling"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (r *HTTPReasoner) Decide(ctx context.Context, c Case) (model.Verdict, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("encode case: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("reasoner request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Verdict{}, fmt.Errorf("read reasoner response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return model.Verdict{}, fmt.Errorf("reasoner returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		return model.Verdict{}, err
	}
	r.logger.Debug("reasoner verdict",
		zap.String("dispute", c.DisputeID),
		zap.String("ruling", string(verdict.Ruling.Kind)),
		zap.Float64("confidence", verdict.Confidence),
	)
	return verdict, nil
}

// parseVerdict accepts snake_case and camelCase basis point fields. The
// ruling is returned as given; validation happens before submission.
func parseVerdict(raw []byte) (model.Verdict, error) {
	var resp verdictResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	kind, err := model.ParseRulingKind(resp.Ruling.Type)
	if err != nil {
		return model.Verdict{}, err
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return model.Verdict{}, fmt.Errorf("confidence %v out of range", resp.Confidence)
	}
	ruling := model.Ruling{Kind: kind}
	if kind == model.RulingSplit {
		ruling.ClientBps = firstBps(resp.Ruling.ClientBps, resp.Ruling.ClientBpsAlt)
		ruling.ProviderBps = firstBps(resp.Ruling.ProviderBps, resp.Ruling.ProviderBpsAlt)
	}
	return model.Verdict{
		Ruling:     ruling,
		Confidence: resp.Confidence,
		Rationale:  resp.Rationale,
	}, nil
}

func firstBps(values ...*uint16) uint16 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
