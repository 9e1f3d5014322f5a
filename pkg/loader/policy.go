package loader

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
	"github.com/Kaniroj/New-AI-Kanilla/internal/types"
	"github.com/Kaniroj/New-AI-Kanilla/pkg/config"
)

// Policy tries transcript sources in order and keeps the first one that
// yields anything. Every fallback is logged with the reason.
type Policy struct {
	sources []types.Source
	logger  *slog.Logger
}

func NewPolicy(sources ...types.Source) *Policy {
	return &Policy{
		sources: sources,
		logger:  slog.Default().With("component", "source-policy"),
	}
}

// FromConfig builds the policy described by source.order.
func FromConfig(cfg config.SourceConfig) (*Policy, error) {
	sources := make([]types.Source, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		switch name {
		case config.SourceTabular:
			sources = append(sources, NewTabularSource(cfg.TabularPath))
		case config.SourceDirectory:
			sources = append(sources, NewDirectorySource(cfg.Directory))
		case config.SourceWeb:
			web, err := NewWebSource(WebConfig{
				BaseURL:           cfg.WebURL,
				MaxDepth:          cfg.MaxDepth,
				RateLimit:         cfg.RateLimit,
				AllowedExtensions: cfg.AllowedExtensions,
			})
			if err != nil {
				return nil, err
			}
			sources = append(sources, web)
		default:
			return nil, models.ConfigurationError("unknown transcript source %q", name)
		}
	}
	if len(sources) == 0 {
		return nil, models.ConfigurationError("no transcript sources configured")
	}
	return NewPolicy(sources...), nil
}

// Load returns the corpus of the first source that loads without error and
// is not empty, together with that source's name.
func (p *Policy) Load(ctx context.Context) (models.Corpus, string, error) {
	var errs []error
	for i, src := range p.sources {
		corpus, err := src.Load(ctx)
		if ctx.Err() != nil {
			return models.Corpus{}, "", ctx.Err()
		}
		fallback := i < len(p.sources)-1

		switch {
		case err != nil:
			errs = append(errs, err)
			if fallback {
				p.logger.Warn("transcript source failed, falling back",
					"source", src.Name(), "next", p.sources[i+1].Name(), "err", err)
			} else {
				p.logger.Warn("transcript source failed", "source", src.Name(), "err", err)
			}
		case corpus.Empty():
			if fallback {
				p.logger.Warn("transcript source is empty, falling back",
					"source", src.Name(), "next", p.sources[i+1].Name())
			} else {
				p.logger.Warn("transcript source is empty", "source", src.Name())
			}
		default:
			p.logger.Info("using transcript source", "source", src.Name(),
				"documents", len(corpus.Documents), "chunks", len(corpus.Chunks))
			return corpus, src.Name(), nil
		}
	}

	return models.Corpus{}, "", models.WrapError(models.CodeIngestionData,
		"no transcripts found", errors.Join(errs...))
}
