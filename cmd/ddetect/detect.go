package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"datadetector/internal/audit"
	"datadetector/internal/detect"
	"datadetector/internal/extract"
	"datadetector/internal/logging"
	"datadetector/internal/redact"
)

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// input is one text to scan. Source is empty for text given as arguments.
type input struct {
	Source   string
	Location string
	Text     string
}

type fileResult struct {
	Source   string          `json:"source"`
	Location string          `json:"location,omitempty"`
	Entities []detect.Entity `json:"entities"`
}

func parseDetectOptions(types, offsets string) (*detect.Options, error) {
	unit, err := detect.ParseOffsetUnit(offsets)
	if err != nil {
		return nil, err
	}
	opts := &detect.Options{Offsets: unit}
	if types != "all" {
		if opts.Types, err = detect.ParseTypes(types); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// collectInputs joins positional args into one text; with neither args nor
// files it reads stdin.
func collectInputs(args []string, files []string, stdin io.Reader) ([]input, error) {
	var out []input
	if len(args) > 0 {
		out = append(out, input{Text: strings.Join(args, " ")})
	}
	for _, path := range files {
		segs, err := extract.File(path)
		if err != nil {
			return nil, err
		}
		for _, seg := range segs {
			out = append(out, input{Source: path, Location: seg.Location, Text: seg.Text})
		}
	}
	if len(args) == 0 && len(files) == 0 {
		segs, err := extract.Text{}.Extract(stdin)
		if err != nil {
			return nil, err
		}
		out = append(out, input{Text: segs[0].Text})
	}
	return out, nil
}

func detectCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	types := fs.String("types", "all", "comma separated types: phoneNumber,link,email,address,date")
	offsets := fs.String("offsets", string(detect.OffsetBytes), "offset unit: bytes|runes|utf16")
	backendName := fs.String("backend", "", "override the configured backend")
	pretty := fs.Bool("pretty", false, "indent JSON output")
	var files fileList
	fs.Var(&files, "file", "scan a file (repeatable; - reads stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := parseDetectOptions(*types, *offsets)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	n, err := newNormalizer(cfg, *backendName, logger)
	if err != nil {
		return err
	}
	store, err := audit.Open(cfg.Audit.Driver, cfg.Audit.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	inputs, err := collectInputs(fs.Args(), files, os.Stdin)
	if err != nil {
		return err
	}
	return runDetect(context.Background(), n, store, logger, inputs, opts, stdout, *pretty)
}

// runDetect scans inputs concurrently; the first failure aborts the run.
// A single positional text prints a bare entity list, anything else prints
// one JSON object per input.
func runDetect(ctx context.Context, n *detect.Normalizer, store audit.Logger, logger logging.Logger, inputs []input, opts *detect.Options, stdout io.Writer, pretty bool) error {
	results := make([]fileResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			entry := audit.NewEntry(audit.SourceCLI, n.Backend().Name())
			entry.Describe(in.Text, opts)
			started := time.Now()
			entities, err := n.Detect(gctx, in.Text, opts)
			entry.Record(entities, err, time.Since(started))
			if lerr := store.Log(entry); lerr != nil {
				logger.Warn("audit log failed", "request_id", entry.RequestID, "source", in.Source, "error", lerr)
			}
			if err != nil {
				if in.Source != "" {
					return fmt.Errorf("%s: %w", in.Source, err)
				}
				return err
			}
			results[i] = fileResult{Source: in.Source, Location: in.Location, Entities: entities}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if len(results) == 1 && results[0].Source == "" {
		return enc.Encode(results[0].Entities)
	}
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func redactCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("redact", flag.ContinueOnError)
	types := fs.String("types", "all", "comma separated types to redact")
	backendName := fs.String("backend", "", "override the configured backend")
	file := fs.String("file", "", "read input from a text file")
	asJSON := fs.Bool("json", false, "input is a JSON document; redact its string values")
	mapping := fs.String("mapping", "", "write the placeholder mapping to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := parseDetectOptions(*types, string(detect.OffsetBytes))
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	n, err := newNormalizer(cfg, *backendName, logger)
	if err != nil {
		return err
	}

	var text string
	switch {
	case *file != "":
		data, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		text = string(data)
	case fs.NArg() > 0:
		text = strings.Join(fs.Args(), " ")
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(data)
	}

	r := redact.New(n).WithTypes(opts.Types)
	if *asJSON {
		r = r.WithJSONKeys()
	}
	return runRedact(context.Background(), r, text, *asJSON, *mapping, stdout)
}

func runRedact(ctx context.Context, r *redact.Redactor, text string, asJSON bool, mappingPath string, stdout io.Writer) error {
	var (
		out   string
		items []redact.Item
	)
	if asJSON {
		raw, its, err := r.RedactJSON(ctx, []byte(text))
		if err != nil {
			return err
		}
		out, items = string(raw)+"\n", its
	} else {
		var err error
		if out, items, err = r.Redact(ctx, text); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(stdout, out); err != nil {
		return err
	}
	if mappingPath == "" {
		return nil
	}
	if items == nil {
		items = []redact.Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(mappingPath, data, 0o600)
}

func restoreCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	mapping := fs.String("mapping", "", "placeholder mapping written by redact --mapping")
	file := fs.String("file", "", "read redacted text from a file instead of stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mapping == "" {
		return fmt.Errorf("usage: ddetect restore --mapping items.json [--file path]")
	}
	var src io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	return runRestore(*mapping, src, stdout)
}

func runRestore(mappingPath string, src io.Reader, stdout io.Writer) error {
	data, err := os.ReadFile(mappingPath)
	if err != nil {
		return err
	}
	var items []redact.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse mapping: %w", err)
	}
	_, err = io.Copy(stdout, redact.NewStreamingRestorer(src, items))
	return err
}
