package epubkit

import (
	"context"
	"log/slog"
	"math"

	"github.com/tsawler/epubkit/pipeline"
	"github.com/tsawler/epubkit/profile"
	"github.com/tsawler/epubkit/split"
)

// ExtractOptions holds the configuration accumulated by an Extractor.
type ExtractOptions struct {
	ctx      context.Context
	logger   *slog.Logger
	profiles *profile.Store
	profile  string

	chapters []string // ids to keep; nil keeps all

	maxTokens  int
	minTokens  int
	noSplit    bool
	morphology bool
}

func defaultOptions() ExtractOptions {
	return ExtractOptions{ctx: context.Background()}
}

func (o ExtractOptions) clone() ExtractOptions {
	n := o
	if o.chapters != nil {
		n.chapters = make([]string, len(o.chapters))
		copy(n.chapters, o.chapters)
	}
	return n
}

// pipelineConfig converts the options. The pipeline never touches its work
// directory here: only Analyze is called.
func (o ExtractOptions) pipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		Profiles:   o.profiles,
		Profile:    o.profile,
		Morphology: o.morphology,
		Logger:     o.logger,
		Split: split.Config{
			MaxTokens: o.maxTokens,
			MinTokens: o.minTokens,
		},
	}
	if o.noSplit {
		cfg.Split.MaxTokens = math.MaxInt32
	}
	return cfg
}
