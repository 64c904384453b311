// Package datadetector finds phone numbers, links, email addresses, postal
// addresses and dates in free text and reports them in one normalized shape
// whichever detection engine is configured.
//
//	d, err := datadetector.New(datadetector.WithBackend("textcheck"))
//	entities, err := d.Detect(ctx, "Call me at 555-123-4567", nil)
package datadetector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"datadetector/internal/backend"
	"datadetector/internal/config"
	"datadetector/internal/detect"
	"datadetector/internal/logging"
)

type (
	Entity        = detect.Entity
	Type          = detect.Type
	DetectOptions = detect.Options
	OffsetUnit    = detect.OffsetUnit
	Error         = detect.Error
	ErrorKind     = detect.Kind
	Future        = detect.Future
	Logger        = logging.Logger
)

const (
	PhoneNumber = detect.PhoneNumber
	Link        = detect.Link
	Email       = detect.Email
	Address     = detect.Address
	Date        = detect.Date

	OffsetBytes = detect.OffsetBytes
	OffsetRunes = detect.OffsetRunes
	OffsetUTF16 = detect.OffsetUTF16

	ModelUnavailable = detect.ModelUnavailable
	DetectionFailed  = detect.DetectionFailed

	CodeModelDownload = detect.CodeModelDownload
	CodeDetection     = detect.CodeDetection
)

var (
	ErrModelUnavailable = detect.ErrModelUnavailable
	ErrDetectionFailed  = detect.ErrDetectionFailed
)

// ErrorCode returns MODEL_DOWNLOAD_ERROR or DETECTION_ERROR for errors
// returned by Detect, "" otherwise.
func ErrorCode(err error) string { return detect.ErrorCode(err) }

// ParseTypes parses a comma separated list such as "phoneNumber,link".
func ParseTypes(s string) ([]Type, error) { return detect.ParseTypes(s) }

type settings struct {
	cfg    config.Config
	logger Logger
	err    error
}

type Option func(*settings)

// WithConfigFile loads a YAML config file; later options override it.
func WithConfigFile(path string) Option {
	return func(s *settings) {
		cfg, err := config.Load(path)
		if err != nil {
			s.err = err
			return
		}
		s.cfg = cfg
	}
}

// WithBackend selects "textcheck" (default) or "entityx".
func WithBackend(name string) Option {
	return func(s *settings) { s.cfg.Backend = name }
}

// WithLanguage sets the BCP 47 tag used for model selection and the default
// phone region.
func WithLanguage(tag string) Option {
	return func(s *settings) { s.cfg.Language = tag }
}

// WithTimezone sets the IANA zone dates are rendered in.
func WithTimezone(name string) Option {
	return func(s *settings) { s.cfg.Timezone = name }
}

func WithModelsRoot(dir string) Option {
	return func(s *settings) { s.cfg.Entityx.ModelsRoot = dir }
}

// WithNER enables the optional NER tagger of the entityx backend.
func WithNER(enabled bool) Option {
	return func(s *settings) { s.cfg.Entityx.NER.Enabled = enabled }
}

func WithLogger(l Logger) Option {
	return func(s *settings) { s.logger = l }
}

// Detector is safe for concurrent use.
type Detector struct {
	normalizer *detect.Normalizer
	backend    string
}

func New(opts ...Option) (*Detector, error) {
	s := settings{cfg: config.Default()}
	for _, opt := range opts {
		opt(&s)
		if s.err != nil {
			return nil, s.err
		}
	}
	cfg := s.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("datadetector: %w", err)
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	b, err := backend.New(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	n := detect.New(b, detect.Config{Language: cfg.Language, Location: cfg.Location(), Logger: s.logger})
	return &Detector{normalizer: n, backend: b.Name()}, nil
}

func (d *Detector) Backend() string { return d.backend }

// Detect returns the entities of the requested types in text. A nil opts
// requests every type with byte offsets.
func (d *Detector) Detect(ctx context.Context, text string, opts *DetectOptions) ([]Entity, error) {
	return d.normalizer.Detect(ctx, text, opts)
}

func (d *Detector) DetectAsync(ctx context.Context, text string, opts *DetectOptions) *Future {
	return d.normalizer.DetectAsync(ctx, text, opts)
}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
	defaultErr      error
)

// Default is the lazily built textcheck detector used by Detect.
func Default() (*Detector, error) {
	defaultOnce.Do(func() {
		defaultDetector, defaultErr = New()
	})
	return defaultDetector, defaultErr
}

func Detect(ctx context.Context, text string, opts *DetectOptions) ([]Entity, error) {
	d, err := Default()
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, text, opts)
}

// DetectTimeout is Detect bounded by timeout.
func DetectTimeout(text string, opts *DetectOptions, timeout time.Duration) ([]Entity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Detect(ctx, text, opts)
}
