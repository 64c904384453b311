// Package backend builds the configured detection backend.
package backend

import (
	"fmt"

	"datadetector/internal/backend/entityx"
	"datadetector/internal/backend/textcheck"
	"datadetector/internal/config"
	"datadetector/internal/detect"
	"datadetector/internal/logging"
	"datadetector/internal/models"
)

func New(cfg config.Config, logger logging.Logger) (detect.Backend, error) {
	return NewNamed(cfg.Backend, cfg, logger)
}

// NewNamed builds backend name with cfg's settings, letting callers
// override the configured backend.
func NewNamed(name string, cfg config.Config, logger logging.Logger) (detect.Backend, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	switch name {
	case "", config.BackendTextcheck:
		return textcheck.NewBackend(textcheck.Options{
			Region:   cfg.Region(),
			Location: cfg.Location(),
		}), nil
	case config.BackendEntityx:
		reg, err := models.LoadRegistry(cfg.Entityx.Registry)
		if err != nil {
			return nil, fmt.Errorf("entityx registry: %w", err)
		}
		return entityx.NewBackend(entityx.Options{
			Language:   cfg.Language,
			ModelsRoot: cfg.Entityx.ModelsRoot,
			Registry:   &reg,
			MaxBytes:   cfg.Entityx.MaxBytes,
			NER: entityx.NEROptions{
				Enabled:  cfg.Entityx.NER.Enabled,
				MinScore: cfg.Entityx.NER.MinScore,
				Timeout:  cfg.Entityx.NER.Timeout(),
				SeqLen:   cfg.Entityx.NER.SeqLen,
			},
			Location: cfg.Location(),
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
