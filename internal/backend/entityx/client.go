package entityx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datadetector/internal/backend/entityx/ner"
	"datadetector/internal/logging"
	"datadetector/internal/models"
	"datadetector/internal/recognize"
)

const DefaultMaxBytes = 64 * 1024

type NEROptions struct {
	Enabled  bool
	MinScore float64
	Timeout  time.Duration
	SeqLen   int
	// NewSession overrides the ONNX runtime, mostly for tests.
	NewSession ner.SessionFactory
}

type Options struct {
	// Language is a BCP 47 tag selecting the entity model; "en" when empty.
	Language   string
	ModelsRoot string
	Registry   *models.Registry
	Downloader *models.Downloader
	OnProgress models.ProgressCallback
	// Types restricts which entity types are reported; nil means all.
	Types    []EntityType
	MaxBytes int
	NER      NEROptions
	Location *time.Location
	Now      func() time.Time
	Logger   logging.Logger
}

// Client is bound to the model of one language. DownloadModelIfNeeded must
// succeed before Annotate.
type Client struct {
	opts Options

	mu        sync.Mutex
	manifest  *models.Manifest
	annotator *annotator
	tagger    *ner.Tagger
}

func NewClient(opts Options) *Client {
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Downloader == nil {
		opts.Downloader = models.NewDownloader()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Client{opts: opts}
}

// DownloadModelIfNeeded installs the language model when missing and loads
// it. Calling it again after success is a no-op.
func (c *Client) DownloadModelIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.annotator != nil {
		return nil
	}

	reg := c.opts.Registry
	if reg == nil {
		embedded, err := models.LoadEmbeddedRegistry()
		if err != nil {
			return err
		}
		reg = &embedded
	}
	spec, err := reg.ForLanguage(c.opts.Language)
	if err != nil {
		return err
	}
	root := c.opts.ModelsRoot
	if root == "" {
		if root, err = models.DefaultModelsRoot(); err != nil {
			return err
		}
	}
	downloaded, err := c.opts.Downloader.EnsureInstalled(ctx, spec, root, c.opts.OnProgress)
	if err != nil {
		return fmt.Errorf("install %s: %w", spec.Name, err)
	}
	if downloaded {
		c.opts.Logger.Info("entity model installed", "model", spec.Name, "version", spec.Version)
	}

	dir := models.ModelInstallPath(root, spec.Name)
	manifest, err := models.ReadManifest(dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", spec.Name, err)
	}

	var tagger *ner.Tagger
	if c.opts.NER.Enabled && manifest.NER {
		tagger, err = ner.Open(dir, ner.Options{SeqLen: c.opts.NER.SeqLen, NewSession: c.opts.NER.NewSession})
		if err != nil {
			return fmt.Errorf("load %s tagger: %w", spec.Name, err)
		}
	}

	kinds := kindsFor(c.opts.Types) & kindsFor(entityTypes(manifest.EntityTypes))
	a := &annotator{
		rules: recognize.New(recognize.Config{
			Region:   manifest.Region,
			Location: c.opts.Location,
			Now:      c.opts.Now,
			Kinds:    kinds,
		}),
		cfg: hybridConfig{
			NEREnabled: tagger != nil,
			Timeout:    c.opts.NER.Timeout,
			MinScore:   c.opts.NER.MinScore,
			Kinds:      kinds,
			Location:   c.opts.Location,
			Now:        c.opts.Now,
		},
		logger: c.opts.Logger,
	}
	if tagger != nil {
		// keep a nil *Tagger out of the interface
		a.tagger = tagger
	}
	c.manifest = &manifest
	c.tagger = tagger
	c.annotator = a
	return nil
}

func (c *Client) Manifest() (models.Manifest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.manifest == nil {
		return models.Manifest{}, false
	}
	return *c.manifest, true
}

func (c *Client) Annotate(ctx context.Context, text string) ([]EntityAnnotation, error) {
	c.mu.Lock()
	a := c.annotator
	c.mu.Unlock()
	if a == nil {
		return nil, ErrModelNotDownloaded
	}
	if len(text) > c.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTextTooLarge, len(text), c.opts.MaxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.annotate(ctx, text), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annotator = nil
	t := c.tagger
	c.tagger = nil
	return t.Close()
}

// entityTypes converts manifest strings; an empty manifest list allows all.
func entityTypes(names []string) []EntityType {
	out := make([]EntityType, 0, len(names))
	for _, n := range names {
		out = append(out, EntityType(n))
	}
	return out
}
