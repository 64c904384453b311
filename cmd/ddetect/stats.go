package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"datadetector/internal/audit"
	"datadetector/internal/config"
	"datadetector/internal/stats"
)

const statsFetchTimeout = 700 * time.Millisecond

var renderStatsTextFunc = renderStatsText

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "watch stats")
	recent := fs.Bool("recent", false, "show recent requests")
	export := fs.String("export", "", "export format: json|csv")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *watch {
		return watchStats(*recent, *export)
	}
	return renderStatsTo(os.Stdout, *recent, *export)
}

func watchStats(recent bool, export string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	if export == "" && isTerminal() {
		fmt.Fprint(os.Stdout, "\033[?25l")
		defer fmt.Fprint(os.Stdout, "\033[?25h")
	}
	return watchStatsLoop(os.Stdout, recent, export, ticker.C, sigCh)
}

func watchStatsLoop(w io.Writer, recent bool, export string, ticks <-chan time.Time, stop <-chan os.Signal) error {
	for {
		out, err := renderStatsTextFunc(recent, export)
		if err != nil {
			return err
		}
		if export == "" && isTerminal() {
			fmt.Fprint(w, "\033[H\033[2J\033[3J")
		}
		fmt.Fprint(w, out)
		select {
		case <-ticks:
		case <-stop:
			return nil
		}
	}
}

func renderStatsText(recent bool, export string) (string, error) {
	var buf strings.Builder
	if err := renderStatsTo(&buf, recent, export); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderStatsTo(w io.Writer, recent bool, export string) error {
	st, err := getStats()
	if err != nil {
		return err
	}
	return writeStats(w, st, recent, export)
}

func writeStats(w io.Writer, st stats.Stats, recent bool, export string) error {
	switch strings.ToLower(export) {
	case "":
		if recent {
			printRecent(w, st)
			return nil
		}
		printSummary(w, st)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "csv":
		if !recent {
			return fmt.Errorf("csv export requires --recent")
		}
		return exportRecentCSV(w, st.Recent)
	default:
		return fmt.Errorf("unsupported export format %q", export)
	}
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// getStats asks the running daemon first and falls back to aggregating the
// audit store directly.
func getStats() (stats.Stats, error) {
	cfg, err := loadConfig()
	if err != nil {
		return stats.Stats{}, err
	}
	if st, err := fetchDaemonStats("http://" + cfg.Server.Addr + "/api/stats"); err == nil {
		return st, nil
	}
	return localStats(cfg)
}

func localStats(cfg config.Config) (stats.Stats, error) {
	store, err := audit.Open(cfg.Audit.Driver, cfg.Audit.Path)
	if err != nil {
		return stats.Stats{}, err
	}
	defer store.Close()
	entries, err := store.Entries()
	if err != nil {
		return stats.Stats{}, err
	}
	status := "stopped"
	if d, err := newDaemonControl(); err == nil {
		if running, _ := d.running(); running {
			status = "running"
		}
	}
	return stats.CollectFromEntries(entries, stats.Options{Now: time.Now().UTC(), Status: status, Addr: cfg.Server.Addr}), nil
}

func fetchDaemonStats(url string) (stats.Stats, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if err := fasthttp.DoTimeout(req, resp, statsFetchTimeout); err != nil {
		return stats.Stats{}, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return stats.Stats{}, fmt.Errorf("stats API status %d", resp.StatusCode())
	}
	var st stats.Stats
	if err := json.Unmarshal(resp.Body(), &st); err != nil {
		return stats.Stats{}, err
	}
	return st, nil
}

func printSummary(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, "Data Detector Statistics")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Status:      %s\n", st.Status)
	fmt.Fprintf(w, "Uptime:      %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	if st.Addr != "" {
		fmt.Fprintf(w, "Addr:        %s\n", st.Addr)
	}
	fmt.Fprintf(w, "Requests:    %d (%d failed, %.1f/min last 5m)\n", st.Requests.Total, st.Requests.Failed, st.Requests.PerMinute)
	fmt.Fprintf(w, "Text:        %d bytes\n", st.Requests.TextBytes)
	fmt.Fprintf(w, "Latency:     mean %.1fms | p95 %.1fms | max %.1fms\n", st.Latency.MeanMs, st.Latency.P95Ms, st.Latency.MaxMs)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Entities")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, t := range sortedKeys(st.Entities.ByType) {
		v := st.Entities.ByType[t]
		fmt.Fprintf(w, "%-12s %5d %s\n", t+":", v, progress(v, st.Entities.Total))
	}
	fmt.Fprintf(w, "Total:       %d\n", st.Entities.Total)

	if len(st.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors")
		fmt.Fprintln(w, strings.Repeat("-", 40))
		for _, code := range sortedKeys(st.Errors) {
			fmt.Fprintf(w, "%-24s %d\n", code, st.Errors[code])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Backends")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, b := range st.Backends {
		fmt.Fprintf(w, "%-24s %d\n", b.Backend, b.Requests)
	}
}

func printRecent(w io.Writer, st stats.Stats) {
	fmt.Fprintln(w, "Recent Requests")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "%-10s %-6s %-10s %-28s %-20s %-8s\n", "TIME", "SOURCE", "BACKEND", "ENTITIES", "ERROR", "LATENCY")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, r := range st.Recent {
		tm := r.Timestamp
		if ts, err := time.Parse(time.RFC3339Nano, r.Timestamp); err == nil {
			tm = ts.Format("15:04:05")
		}
		errCode := r.ErrorCode
		if errCode == "" {
			errCode = "-"
		}
		fmt.Fprintf(w, "%-10s %-6s %-10s %-28s %-20s %-8.1fms\n", tm, r.Source, r.Backend, entityLabel(r.ByType), errCode, r.LatencyMs)
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
	fmt.Fprintf(w, "Showing %d of %d total requests\n", len(st.Recent), st.Requests.Total)
}

func progress(v, total int) string {
	if total <= 0 {
		return ""
	}
	p := int(float64(v) / float64(total) * 20)
	if p > 20 {
		p = 20
	}
	return strings.Repeat("█", p) + strings.Repeat("░", 20-p)
}

func entityLabel(byType map[string]int) string {
	if len(byType) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(byType))
	for _, t := range sortedKeys(byType) {
		parts = append(parts, fmt.Sprintf("%d %s", byType[t], t))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exportRecentCSV(w io.Writer, rows []stats.RecentRequest) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "request_id", "source", "backend", "entity_types", "entities", "error_code", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Timestamp,
			r.RequestID,
			r.Source,
			r.Backend,
			strings.Join(sortedKeys(r.ByType), "|"),
			fmt.Sprintf("%d", r.Entities),
			r.ErrorCode,
			fmt.Sprintf("%.3f", r.LatencyMs),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
