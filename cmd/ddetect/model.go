package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datadetector/internal/backend/entityx"
	"datadetector/internal/backend/entityx/ner"
	"datadetector/internal/models"
)

const sampleText = "Call +1 415 555 0100 or write to jane@example.com before May 5, 2026."

func modelCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: ddetect model [list|download|info|remove|verify]")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := models.LoadRegistry(cfg.Entityx.Registry)
	if err != nil {
		return err
	}
	root := cfg.Entityx.ModelsRoot
	if root == "" {
		if root, err = models.DefaultModelsRoot(); err != nil {
			return err
		}
	}
	sub := args[0]
	subArgs := args[1:]
	switch sub {
	case "list":
		return modelList(os.Stdout, registry, root)
	case "info":
		if len(subArgs) != 1 {
			return fmt.Errorf("usage: ddetect model info <name>")
		}
		return modelInfo(os.Stdout, registry, root, subArgs[0])
	case "download":
		return modelDownload(os.Stdout, registry, root, subArgs)
	case "remove":
		if len(subArgs) != 1 {
			return fmt.Errorf("usage: ddetect model remove <name>")
		}
		return modelRemove(os.Stdout, registry, root, subArgs[0], os.Stdin)
	case "verify":
		return modelVerify(os.Stdout, registry, root)
	default:
		return fmt.Errorf("unknown model subcommand %q", sub)
	}
}

func modelList(w io.Writer, registry models.Registry, root string) error {
	fmt.Fprintln(w, "Entity Models")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "%-12s %-6s %-8s %-14s %-30s\n", "NAME", "LANG", "SIZE", "STATUS", "TYPES")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	installed := 0
	var totalSize int64
	for _, m := range registry.Models {
		status := "not installed"
		if models.IsInstalled(root, m) {
			status = "installed"
			installed++
			totalSize += m.SizeBytes
		}
		fmt.Fprintf(w, "%-12s %-6s %-8s %-14s %-30s\n", m.Name, m.Language, humanBytes(m.SizeBytes), status, strings.Join(m.EntityTypes, ", "))
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "Installed: %d/%d models\n", installed, len(registry.Models))
	fmt.Fprintf(w, "Total size: %s\n", humanBytes(totalSize))
	fmt.Fprintln(w, "\nTip: Use 'ddetect model download <name>' to install a model")
	return nil
}

func modelInfo(w io.Writer, registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	status := "Not installed"
	location := models.ModelInstallPath(root, m.Name)
	if models.IsInstalled(root, m) {
		status = "Installed"
	} else if models.IsStale(root, m) {
		status = "Stale (registry checksum changed)"
	}
	display := m.DisplayName
	if display == "" {
		display = m.Name
	}
	fmt.Fprintf(w, "Entity Model: %s\n", display)
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "Name:           %s\n", m.Name)
	fmt.Fprintf(w, "Status:         %s\n", status)
	fmt.Fprintf(w, "Version:        %s\n", m.Version)
	fmt.Fprintf(w, "Language:       %s\n", m.Language)
	fmt.Fprintf(w, "Size:           %s\n", humanBytes(m.SizeBytes))
	fmt.Fprintf(w, "Location:       %s\n", location)
	fmt.Fprintf(w, "Description:    %s\n", m.Description)
	fmt.Fprintf(w, "Entity Types:   %s\n", strings.Join(m.EntityTypes, ", "))
	fmt.Fprintf(w, "License:        %s\n", m.License)
	fmt.Fprintf(w, "URL:            %s\n", modelSource(m))
	fmt.Fprintf(w, "Checksum:       %s\n", m.Checksum)
	if manifest, err := models.ReadManifest(location); err == nil {
		fmt.Fprintf(w, "Region:         %s\n", manifest.Region)
		fmt.Fprintf(w, "NER:            %s\n", enabledLabel(manifest.NER))
	}
	return nil
}

func modelDownload(w io.Writer, registry models.Registry, root string, args []string) error {
	fs := flag.NewFlagSet("model download", flag.ContinueOnError)
	all := fs.Bool("all", false, "download all recommended models")
	if err := fs.Parse(args); err != nil {
		return err
	}
	selected := make([]models.ModelSpec, 0)
	if *all {
		for _, m := range registry.Models {
			if m.Recommended {
				selected = append(selected, m)
			}
		}
	} else {
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: ddetect model download <name> or ddetect model download --all")
		}
		m, ok := registry.Find(fs.Arg(0))
		if !ok {
			return fmt.Errorf("model %q not found", fs.Arg(0))
		}
		selected = append(selected, m)
	}
	dl := models.NewDownloader()
	for _, m := range selected {
		fmt.Fprintf(w, "\nDownloading %s v%s\n", m.Name, m.Version)
		fmt.Fprintf(w, "Source: %s\n\n", modelSource(m))
		lastUpdate := time.Time{}
		err := dl.DownloadAndInstall(context.Background(), m, root, func(p models.Progress) {
			if time.Since(lastUpdate) < 120*time.Millisecond && p.Total > 0 {
				return
			}
			lastUpdate = time.Now()
			pct := float64(0)
			if p.Total > 0 {
				pct = float64(p.Downloaded) * 100 / float64(p.Total)
			}
			fmt.Fprintf(w, "\rDownloading... %6.2f%% | %s / %s | %.2f MB/s | ETA %s", pct, humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedMBps, p.ETA.Truncate(time.Second))
		})
		fmt.Fprintln(w)
		if err != nil {
			return err
		}
		if m.URL != "" {
			fmt.Fprintln(w, "Verifying checksum... ✓")
			fmt.Fprintln(w, "Extracting... ✓")
		}
		if err := validateModelLoads(registry, root, m); err != nil {
			return fmt.Errorf("validate model: %w", err)
		}
		fmt.Fprintln(w, "Validating model... ✓")
		fmt.Fprintf(w, "\n✓ Model %s installed successfully\n", m.Name)
	}
	return nil
}

// validateModelLoads checks the NER files parse and that the bundle can
// annotate a sample text with the rule recognizers.
func validateModelLoads(registry models.Registry, root string, m models.ModelSpec) error {
	dir := models.ModelInstallPath(root, m.Name)
	manifest, err := models.ReadManifest(dir)
	if err != nil {
		return err
	}
	if manifest.NER {
		if _, err := ner.LoadLabels(filepath.Join(dir, ner.LabelsFile)); err != nil {
			return fmt.Errorf("read %s: %w", ner.LabelsFile, err)
		}
		if _, err := ner.LoadTokenizer(filepath.Join(dir, ner.TokenizerFile), 0); err != nil {
			return fmt.Errorf("read %s: %w", ner.TokenizerFile, err)
		}
	}

	client := entityx.NewClient(entityx.Options{
		Language:   manifest.Language,
		ModelsRoot: root,
		Registry:   &registry,
	})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.DownloadModelIfNeeded(ctx); err != nil {
		return err
	}
	_, err = client.Annotate(ctx, sampleText)
	return err
}

func modelRemove(w io.Writer, registry models.Registry, root, name string, in io.Reader) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	loc := models.ModelInstallPath(root, m.Name)
	if _, err := os.Stat(loc); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(w, "Model %s is not installed\n", name)
			return nil
		}
		return err
	}
	fmt.Fprintf(w, "Remove model '%s' (%s)?\n", m.Name, humanBytes(m.SizeBytes))
	fmt.Fprintf(w, "This will delete %s\n\n", loc)
	fmt.Fprint(w, "Continue? (y/N): ")
	resp, _ := bufio.NewReader(in).ReadString('\n')
	resp = strings.TrimSpace(strings.ToLower(resp))
	if resp != "y" && resp != "yes" {
		fmt.Fprintln(w, "Cancelled")
		return nil
	}
	if err := models.Remove(root, m.Name); err != nil {
		return err
	}
	fmt.Fprintln(w, "Removing model... ✓")
	fmt.Fprintf(w, "Model %s removed successfully\n", m.Name)
	return nil
}

func modelVerify(w io.Writer, registry models.Registry, root string) error {
	fmt.Fprintln(w, "Verifying installed models...")
	installed := 0
	failures := 0
	for _, m := range registry.Models {
		dir := models.ModelInstallPath(root, m.Name)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		installed++
		fmt.Fprintf(w, "\n%s\n", m.Name)
		stale := false
		if sum, err := models.InstalledChecksum(root, m.Name); err == nil {
			if sum == m.Checksum {
				fmt.Fprintln(w, "  ├─ Checksum... ✓")
			} else {
				fmt.Fprintln(w, "  ├─ Checksum... ✗ (registry mismatch)")
				failures++
				stale = true
			}
		} else {
			fmt.Fprintln(w, "  ├─ Checksum... ? (metadata unavailable)")
		}
		if err := models.ValidateModelDir(dir); err != nil {
			fmt.Fprintf(w, "  ├─ Files...    ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(w, "  ├─ Files...    ✓")
		if stale {
			fmt.Fprintf(w, "  └─ Loadable... - (stale, run 'ddetect model download %s')\n", m.Name)
			continue
		}
		if err := validateModelLoads(registry, root, m); err != nil {
			fmt.Fprintf(w, "  └─ Loadable... ✗ (%v)\n", err)
			failures++
			continue
		}
		fmt.Fprintln(w, "  └─ Loadable... ✓")
	}
	if installed == 0 {
		fmt.Fprintln(w, "\nNo installed models found")
		return nil
	}
	if failures > 0 {
		return fmt.Errorf("%d model(s) failed verification", failures)
	}
	fmt.Fprintln(w, "\nAll models verified")
	return nil
}

func modelSource(m models.ModelSpec) string {
	if m.URL == "" {
		return "built in (rules only)"
	}
	return m.URL
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d KB", n/1024)
}

func enabledLabel(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
