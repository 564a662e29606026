// Package extract binds the rule-extraction stages to implementations.
//
// Stages are opaque: each reads named input files and scalar parameters,
// writes its result to Stdout and diagnostics to Stderr, and returns when
// done. The registry is fixed at start-up; nothing is resolved by name
// through reflection.
package extract

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Tag identifies an extraction stage.
type Tag string

const (
	ExtractSentences           Tag = "extract-sentences"
	ExtractFreqLexicon         Tag = "extract-freq-lexicon"
	NgramCountPatterns         Tag = "ngram-count-patterns"
	NgramsToRules              Tag = "ngrams-to-rules"
	BiltransExtractFracFreq    Tag = "biltrans-extract-frac-freq"
	BiltransCountPatternsNgram Tag = "biltrans-count-patterns-ngrams"
	NgramPruningFrac           Tag = "ngram-pruning-frac"
)

// Tags lists every stage the recipes call.
func Tags() []Tag {
	return []Tag{
		ExtractSentences,
		ExtractFreqLexicon,
		NgramCountPatterns,
		NgramsToRules,
		BiltransExtractFracFreq,
		BiltransCountPatternsNgram,
		NgramPruningFrac,
	}
}

// Call is one invocation of a stage.
type Call struct {
	Inputs []string
	Params []string
	Stdout io.Writer
	Stderr io.Writer
}

// Func runs a stage to completion.
type Func func(ctx context.Context, call Call) error

// Registry maps stage tags to implementations.
type Registry struct {
	mu    sync.RWMutex
	funcs map[Tag]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[Tag]Func)}
}

// Register binds tag to fn, replacing any earlier binding.
func (r *Registry) Register(tag Tag, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[tag] = fn
}

// Lookup returns the implementation for tag.
func (r *Registry) Lookup(tag Tag) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[tag]
	if !ok {
		return nil, fmt.Errorf("extraction stage %q is not registered", tag)
	}
	return fn, nil
}

// Run looks up tag and invokes it.
func (r *Registry) Run(ctx context.Context, tag Tag, call Call) error {
	fn, err := r.Lookup(tag)
	if err != nil {
		return err
	}
	if err := fn(ctx, call); err != nil {
		return fmt.Errorf("%s: %w", tag, err)
	}
	return nil
}

// Registered returns the bound tags in sorted order.
func (r *Registry) Registered() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]Tag, 0, len(r.funcs))
	for t := range r.funcs {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
