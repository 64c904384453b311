package stats

import (
	"fmt"
	"testing"
	"time"

	"datadetector/internal/audit"
)

func TestCollectFromEntriesEmpty(t *testing.T) {
	st := CollectFromEntries(nil, Options{Now: time.Now(), Addr: "127.0.0.1:8088"})
	if st.Requests.Total != 0 || st.Entities.Total != 0 || st.Status != "stopped" {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.Latency != (LatencyStats{}) || len(st.Recent) != 0 {
		t.Fatalf("unexpected latency/recent: %+v", st)
	}
}

func TestCollectFromEntriesLarge(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	entries := make([]audit.Entry, 0, 1200)
	for i := 0; i < 1200; i++ {
		e := audit.Entry{
			RequestID: fmt.Sprintf("req-%d", i),
			Timestamp: now.Add(-time.Duration(i%8) * time.Minute).Format(time.RFC3339Nano),
			Backend:   []string{"textcheck", "entityx"}[i%2],
			TextBytes: 10,
			Entities:  1,
			ByType:    map[string]int{"email": 1},
			LatencyMs: float64(i%100 + 1),
		}
		if i%10 == 0 {
			e.ErrorCode = "DETECTION_ERROR"
			e.Entities = 0
			e.ByType = nil
		}
		entries = append(entries, e)
	}
	st := CollectFromEntries(entries, Options{Now: now, Status: "running", RecentN: 5})
	if st.Requests.Total != 1200 || st.Requests.Failed != 120 || st.Errors["DETECTION_ERROR"] != 120 {
		t.Fatalf("requests=%+v errors=%v", st.Requests, st.Errors)
	}
	if st.Entities.ByType["email"] != 1080 || st.Entities.Total != 1080 {
		t.Fatalf("entities=%+v", st.Entities)
	}
	if st.Requests.TextBytes != 12000 {
		t.Fatalf("text bytes=%d", st.Requests.TextBytes)
	}
	// offsets 0..4 minutes land in the window, 5..7 do not
	if st.Requests.Last5Minute[4] != 150 || st.Requests.PerMinute != 150 {
		t.Fatalf("window=%v per_minute=%v", st.Requests.Last5Minute, st.Requests.PerMinute)
	}
	if len(st.Backends) != 2 || st.Backends[0].Backend != "entityx" || st.Backends[0].Requests != 600 {
		t.Fatalf("backends=%+v", st.Backends)
	}
	if st.Latency.MaxMs != 100 || st.Latency.P95Ms != 95 || st.Latency.MeanMs != 50.5 {
		t.Fatalf("latency=%+v", st.Latency)
	}
	if len(st.Recent) != 5 || st.Recent[0].RequestID != "req-1199" {
		t.Fatalf("recent=%+v", st.Recent)
	}
}

func TestLatencyStatsSingle(t *testing.T) {
	got := latencyStats([]float64{3})
	if got.MeanMs != 3 || got.P95Ms != 3 || got.MaxMs != 3 {
		t.Fatalf("got %+v", got)
	}
}
