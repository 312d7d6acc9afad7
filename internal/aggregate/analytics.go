// Package aggregate computes analytics on demand from projection rows and
// re-derives the agent reputation cache.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

const (
	DefaultWeeks = 8
	DefaultDays  = 30
	DefaultTop   = 10

	day  = 24 * time.Hour
	week = 7 * day
)

// Totals summarizes one chain, or every chain when Chain is empty.
type Totals struct {
	Chain          model.Chain         `json:"chain,omitempty"`
	TotalEscrows   int64               `json:"total_escrows"`
	TotalVolume    model.Amount        `json:"total_volume"`
	Open           int64               `json:"open_escrows"`
	Completed      int64               `json:"completed_escrows"`
	Disputed       int64               `json:"disputed_escrows"`
	Resolved       int64               `json:"resolved_escrows"`
	Expired        int64               `json:"expired_escrows"`
	Cancelled      int64               `json:"cancelled_escrows"`
	CompletionRate float64             `json:"completion_rate"`
	DisputeRate    float64             `json:"dispute_rate"`
	ByStatus       []model.StatusTotal `json:"by_status"`
}

func (t *Totals) add(row model.StatusTotal) {
	t.TotalEscrows += row.Count
	t.TotalVolume = t.TotalVolume.Add(row.Volume)
	switch row.Status {
	case model.StatusCompleted:
		t.Completed += row.Count
	case model.StatusDisputed:
		t.Disputed += row.Count
	case model.StatusResolved:
		t.Resolved += row.Count
	case model.StatusExpired:
		t.Expired += row.Count
	case model.StatusCancelled:
		t.Cancelled += row.Count
	default:
		t.Open += row.Count
	}
	t.ByStatus = append(t.ByStatus, row)
}

func (t *Totals) derive() {
	t.CompletionRate = CompletionRate(t.Completed, t.Disputed, t.Resolved, t.Expired, t.Cancelled)
	t.DisputeRate = DisputeRate(t.Disputed, t.Resolved, t.TotalEscrows)
}

// CompletionRate is the completed share of escrows that left the happy path
// or finished it, as a percentage. It is 0 when there are none.
func CompletionRate(completed, disputed, resolved, expired, cancelled int64) float64 {
	return model.Percent(completed, completed+disputed+resolved+expired+cancelled)
}

// DisputeRate is the share of all escrows that were ever disputed.
func DisputeRate(disputed, resolved, total int64) float64 {
	return model.Percent(disputed+resolved, total)
}

// Summarize folds status buckets into an overall summary and one per chain,
// ordered like model.Chains.
func Summarize(rows []model.StatusTotal) (Totals, []Totals) {
	overall := Totals{ByStatus: []model.StatusTotal{}}
	perChain := make(map[model.Chain]*Totals, len(model.Chains))
	for _, c := range model.Chains {
		perChain[c] = &Totals{Chain: c, ByStatus: []model.StatusTotal{}}
	}
	for _, row := range rows {
		overall.add(row)
		t, ok := perChain[row.Chain]
		if !ok {
			continue
		}
		t.add(row)
	}
	overall.derive()

	chains := make([]Totals, 0, len(model.Chains))
	for _, c := range model.Chains {
		t := perChain[c]
		t.derive()
		chains = append(chains, *t)
	}
	return overall, chains
}

// TrendBucket is one fixed-width week.
type TrendBucket struct {
	Start     time.Time    `json:"week_start"`
	Created   int64        `json:"created"`
	Completed int64        `json:"completed"`
	Disputed  int64        `json:"disputed"`
	Volume    model.Amount `json:"volume"`
}

// VolumePoint is one day of created volume.
type VolumePoint struct {
	Day    time.Time    `json:"day"`
	Count  int64        `json:"count"`
	Volume model.Amount `json:"volume"`
}

// windowStart returns the start of n buckets of width ending with the UTC
// day that contains now.
func windowStart(now time.Time, n int, width time.Duration) time.Time {
	end := now.UTC().Truncate(day).Add(day)
	return end.Add(-time.Duration(n) * width)
}

// WeeklyTrend buckets creations and completions into weeks ending today.
// Disputed counts escrows created in the week that are now disputed or
// resolved.
func WeeklyTrend(points []model.EscrowPoint, now time.Time, weeks int) []TrendBucket {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}
	start := windowStart(now, weeks, week)
	buckets := make([]TrendBucket, weeks)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * week)
	}
	index := func(ts time.Time) (int, bool) {
		if ts.Before(start) {
			return 0, false
		}
		i := int(ts.Sub(start) / week)
		return i, i < weeks
	}
	for _, p := range points {
		if i, ok := index(p.CreatedAt); ok {
			buckets[i].Created++
			buckets[i].Volume = buckets[i].Volume.Add(p.Amount)
			if p.Status == model.StatusDisputed || p.Status == model.StatusResolved {
				buckets[i].Disputed++
			}
		}
		if p.CompletedAt != nil {
			if i, ok := index(*p.CompletedAt); ok {
				buckets[i].Completed++
			}
		}
	}
	return buckets
}

// DailyVolume buckets created volume into days ending today.
func DailyVolume(points []model.EscrowPoint, now time.Time, days int) []VolumePoint {
	if days <= 0 {
		days = DefaultDays
	}
	start := windowStart(now, days, day)
	out := make([]VolumePoint, days)
	for i := range out {
		out[i].Day = start.Add(time.Duration(i) * day)
	}
	for _, p := range points {
		if p.CreatedAt.Before(start) {
			continue
		}
		i := int(p.CreatedAt.Sub(start) / day)
		if i >= days {
			continue
		}
		out[i].Count++
		out[i].Volume = out[i].Volume.Add(p.Amount)
	}
	return out
}

// Options selects analytics windows. Zero values use the defaults.
type Options struct {
	Weeks int
	Days  int
	Top   int
}

// Stats is the summary served at /stats.
type Stats struct {
	Overall     Totals    `json:"overall"`
	Chains      []Totals  `json:"chains"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Analytics is the full report served at /analytics.
type Analytics struct {
	Stats
	WeeklyTrend []TrendBucket       `json:"weekly_trend"`
	DailyVolume []VolumePoint       `json:"daily_volume"`
	TopAgents   []model.AgentVolume `json:"top_agents"`
}

// Service computes reports from a storage.Reader on every call.
type Service struct {
	reader storage.Reader
	now    func() time.Time
}

func NewService(reader storage.Reader) *Service {
	return &Service{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.reader.StatusTotals(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("status totals: %w", err)
	}
	overall, chains := Summarize(rows)
	return Stats{Overall: overall, Chains: chains, GeneratedAt: s.now()}, nil
}

func (s *Service) Analytics(ctx context.Context, opts Options) (Analytics, error) {
	if opts.Weeks <= 0 {
		opts.Weeks = DefaultWeeks
	}
	if opts.Days <= 0 {
		opts.Days = DefaultDays
	}
	if opts.Top <= 0 {
		opts.Top = DefaultTop
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return Analytics{}, err
	}
	now := stats.GeneratedAt

	since := windowStart(now, opts.Weeks, week)
	if daily := windowStart(now, opts.Days, day); daily.Before(since) {
		since = daily
	}
	points, err := s.reader.EscrowPoints(ctx, since)
	if err != nil {
		return Analytics{}, fmt.Errorf("escrow points: %w", err)
	}
	top, err := s.reader.TopAgents(ctx, opts.Top)
	if err != nil {
		return Analytics{}, fmt.Errorf("top agents: %w", err)
	}
	if top == nil {
		top = []model.AgentVolume{}
	}

	return Analytics{
		Stats:       stats,
		WeeklyTrend: WeeklyTrend(points, now, opts.Weeks),
		DailyVolume: DailyVolume(points, now, opts.Days),
		TopAgents:   top,
	}, nil
}
