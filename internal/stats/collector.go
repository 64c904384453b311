// Package stats aggregates audit entries into the summary served by
// GET /api/stats and printed by `ddetect stats`.
package stats

import (
	"sort"
	"time"

	"datadetector/internal/audit"
)

type Stats struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Addr          string          `json:"addr,omitempty"`
	Requests      RequestStats    `json:"requests"`
	Entities      EntityStats     `json:"entities"`
	Latency       LatencyStats    `json:"latency"`
	Errors        map[string]int  `json:"errors"`
	Backends      []BackendStats  `json:"backends"`
	Recent        []RecentRequest `json:"recent,omitempty"`
}

type RequestStats struct {
	Total       int     `json:"total"`
	Failed      int     `json:"failed"`
	PerMinute   float64 `json:"per_minute"`
	Last5Minute []int   `json:"last_5_minute"`
	TextBytes   int64   `json:"text_bytes"`
}

type EntityStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

type LatencyStats struct {
	MeanMs float64 `json:"mean_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MaxMs  float64 `json:"max_ms"`
}

type BackendStats struct {
	Backend  string `json:"backend"`
	Requests int    `json:"requests"`
}

type RecentRequest struct {
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
	Source    string         `json:"source"`
	Backend   string         `json:"backend"`
	Entities  int            `json:"entities"`
	ByType    map[string]int `json:"by_type,omitempty"`
	LatencyMs float64        `json:"latency_ms"`
	ErrorCode string         `json:"error_code,omitempty"`
}

type Options struct {
	Now     time.Time
	Status  string
	Uptime  time.Duration
	Addr    string
	RecentN int
}

func CollectFromEntries(entries []audit.Entry, opts Options) Stats {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	recentN := opts.RecentN
	if recentN <= 0 {
		recentN = 20
	}

	out := Stats{
		Status:        opts.Status,
		UptimeSeconds: int64(opts.Uptime.Seconds()),
		Addr:          opts.Addr,
		Requests:      RequestStats{Last5Minute: make([]int, 5)},
		Entities:      EntityStats{ByType: map[string]int{}},
		Errors:        map[string]int{},
		Backends:      []BackendStats{},
	}
	if out.Status == "" {
		out.Status = "stopped"
	}

	backends := map[string]int{}
	latencies := make([]float64, 0, len(entries))
	for _, e := range entries {
		out.Requests.Total++
		out.Requests.TextBytes += int64(e.TextBytes)
		if e.Backend != "" {
			backends[e.Backend]++
		}
		if e.ErrorCode != "" {
			out.Requests.Failed++
			out.Errors[e.ErrorCode]++
		}
		out.Entities.Total += e.Entities
		for typ, n := range e.ByType {
			out.Entities.ByType[typ] += n
		}
		if e.LatencyMs > 0 {
			latencies = append(latencies, e.LatencyMs)
		}
		if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			delta := now.Sub(ts)
			if delta >= 0 && delta < 5*time.Minute {
				out.Requests.Last5Minute[4-int(delta/time.Minute)]++
			}
		}
	}

	sum5 := 0
	for _, n := range out.Requests.Last5Minute {
		sum5 += n
	}
	out.Requests.PerMinute = float64(sum5) / 5
	out.Latency = latencyStats(latencies)

	for b, c := range backends {
		out.Backends = append(out.Backends, BackendStats{Backend: b, Requests: c})
	}
	sort.Slice(out.Backends, func(i, j int) bool {
		if out.Backends[i].Requests == out.Backends[j].Requests {
			return out.Backends[i].Backend < out.Backends[j].Backend
		}
		return out.Backends[i].Requests > out.Backends[j].Requests
	})

	for i := len(entries) - 1; i >= 0 && len(out.Recent) < recentN; i-- {
		e := entries[i]
		out.Recent = append(out.Recent, RecentRequest{
			RequestID: e.RequestID,
			Timestamp: e.Timestamp,
			Source:    e.Source,
			Backend:   e.Backend,
			Entities:  e.Entities,
			ByType:    e.ByType,
			LatencyMs: e.LatencyMs,
			ErrorCode: e.ErrorCode,
		})
	}
	return out
}

// latencyStats uses the nearest-rank percentile.
func latencyStats(ms []float64) LatencyStats {
	if len(ms) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	rank := (95*len(sorted) + 99) / 100
	return LatencyStats{
		MeanMs: sum / float64(len(sorted)),
		P95Ms:  sorted[rank-1],
		MaxMs:  sorted[len(sorted)-1],
	}
}
