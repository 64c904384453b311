package models

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Progress struct {
	Downloaded int64
	Total      int64
	SpeedMBps  float64
	ETA        time.Duration
}

type ProgressCallback func(Progress)

// Downloader installs model bundles. Installs are serialized so two callers
// asking for the same model share one download.
type Downloader struct {
	Client    *http.Client
	Retries   int
	RetryWait time.Duration

	mu sync.Mutex
}

func NewDownloader() *Downloader {
	return &Downloader{
		Client:    &http.Client{Timeout: 0},
		Retries:   2,
		RetryWait: 500 * time.Millisecond,
	}
}

// EnsureInstalled downloads model unless a valid copy is already under
// root. It reports whether a download happened.
func (d *Downloader) EnsureInstalled(ctx context.Context, model ModelSpec, root string, onProgress ProgressCallback) (bool, error) {
	if IsInstalled(root, model) {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if IsInstalled(root, model) {
		return false, nil
	}
	if err := d.install(ctx, model, root, onProgress); err != nil {
		return false, err
	}
	return true, nil
}

// DownloadAndInstall always fetches model, replacing any installed copy.
func (d *Downloader) DownloadAndInstall(ctx context.Context, model ModelSpec, root string, onProgress ProgressCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.install(ctx, model, root, onProgress)
}

func (d *Downloader) install(ctx context.Context, model ModelSpec, root string, onProgress ProgressCallback) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp(root, model.Name+"-download-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	extractDir := filepath.Join(tmpDir, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return err
	}
	if model.URL == "" {
		err = writeRulesManifest(model, extractDir)
	} else {
		err = d.fetch(ctx, model, tmpDir, extractDir, onProgress)
	}
	if err != nil {
		return err
	}
	if err := ValidateModelDir(extractDir); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(extractDir, checksumFile), []byte(model.Checksum+"\n"), 0o644); err != nil {
		return err
	}

	finalPath := ModelInstallPath(root, model.Name)
	oldPath := finalPath + ".bak"
	_ = os.RemoveAll(oldPath)
	if _, err := os.Stat(finalPath); err == nil {
		if err := os.Rename(finalPath, oldPath); err != nil {
			return err
		}
	}
	if err := os.Rename(extractDir, finalPath); err != nil {
		_ = os.Rename(oldPath, finalPath)
		return err
	}
	_ = os.RemoveAll(oldPath)
	return nil
}

func (d *Downloader) fetch(ctx context.Context, model ModelSpec, tmpDir, extractDir string, onProgress ProgressCallback) error {
	archivePath := filepath.Join(tmpDir, model.Name+".tar.gz")
	if err := d.downloadWithRetry(ctx, model.URL, archivePath, onProgress); err != nil {
		return err
	}
	if err := VerifyChecksum(archivePath, model.Checksum); err != nil {
		return err
	}
	return ExtractTarGz(archivePath, extractDir)
}

// writeRulesManifest installs a rules-only bundle straight from its
// registry entry.
func writeRulesManifest(model ModelSpec, dir string) error {
	if model.Language == "" {
		return fmt.Errorf("model %s has neither a download url nor a language", model.Name)
	}
	data, err := json.MarshalIndent(Manifest{
		Name:        model.Name,
		Version:     model.Version,
		Language:    model.Language,
		Region:      model.Region,
		EntityTypes: model.EntityTypes,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644)
}

func (d *Downloader) downloadWithRetry(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	var lastErr error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.RetryWait):
			}
		}
		lastErr = d.download(ctx, url, dest, onProgress)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("download failed after retries: %w", lastErr)
}

func (d *Downloader) download(ctx context.Context, url, dest string, onProgress ProgressCallback) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status %d", resp.StatusCode)
	}
	pw := &progressWriter{w: out, total: resp.ContentLength, start: time.Now(), fn: onProgress}
	_, err = io.Copy(pw, resp.Body)
	return err
}

type progressWriter struct {
	w     io.Writer
	total int64
	done  int64
	start time.Time
	fn    ProgressCallback
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.fn != nil && n > 0 {
		p.fn(p.progress())
	}
	return n, err
}

func (p *progressWriter) progress() Progress {
	pr := Progress{Downloaded: p.done, Total: p.total}
	if elapsed := time.Since(p.start).Seconds(); elapsed > 0 {
		pr.SpeedMBps = float64(p.done) / elapsed / 1024 / 1024
	}
	if p.total > 0 && pr.SpeedMBps > 0 {
		remainingMB := float64(p.total-p.done) / 1024 / 1024
		pr.ETA = time.Duration(remainingMB / pr.SpeedMBps * float64(time.Second))
	}
	return pr
}

// VerifyChecksum compares the file's digest with a "sha256:<hex>" string.
func VerifyChecksum(file, expected string) error {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return errors.New("checksum missing")
	}
	if strings.Contains(expected, "REPLACE_WITH") {
		return errors.New("registry checksum not published yet")
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	actual := "sha256:" + hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// ExtractTarGz unpacks regular files and directories; entries escaping dest
// are skipped.
func ExtractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	root := filepath.Clean(dest) + string(os.PathSeparator)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		clean := strings.TrimPrefix(filepath.Clean(hdr.Name), "./")
		if clean == "." || strings.HasPrefix(clean, "../") {
			continue
		}
		target := filepath.Join(dest, clean)
		if !strings.HasPrefix(target, root) {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ValidateModelDir checks for a manifest (and the NER files when the
// manifest asks for them) in base or in a single nested directory, which is
// then flattened into base.
func ValidateModelDir(base string) error {
	candidates := []string{base}
	entries, _ := os.ReadDir(base)
	for _, e := range entries {
		if e.IsDir() {
			candidates = append(candidates, filepath.Join(base, e.Name()))
		}
	}
	var lastErr error = errors.New("invalid model archive: missing " + ManifestFile)
	for _, c := range candidates {
		manifest, err := ReadManifest(c)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				lastErr = err
			}
			continue
		}
		files := []string{ManifestFile}
		if manifest.NER {
			files = append(files, nerFiles...)
		}
		for _, file := range files[1:] {
			if _, err := os.Stat(filepath.Join(c, file)); err != nil {
				return fmt.Errorf("invalid model archive: missing %s", file)
			}
		}
		if c != base {
			for _, file := range files {
				if err := os.Rename(filepath.Join(c, file), filepath.Join(base, file)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return lastErr
}
