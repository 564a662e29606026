package training

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattjoyce/lextrain/internal/cache"
	"github.com/mattjoyce/lextrain/internal/corpus"
	"github.com/mattjoyce/lextrain/internal/extract"
	"github.com/mattjoyce/lextrain/internal/pipe"
)

func (t *Trainer) nonParallelPlan() Plan {
	f := t.dir.File
	lmBanner := ""
	if t.cfg.TLModel == "" {
		lmBanner = fmt.Sprintf("Making a language model from all lines of %s using IRSTLM from %s and temporary files in %s",
			t.cfg.CorpusTL, t.cfg.IRSTLMDir, f(cache.LanguageModelTmp))
	}

	return Plan{
		{
			Name:     "tag-source",
			Banner:   fmt.Sprintf("Tagging %d lines from the source side corpus ...", t.lines),
			Produces: []cache.Artifact{cache.TaggedSource},
			Run: func(ctx context.Context) error {
				return t.tagCorpus(ctx, t.cfg.CorpusSL, t.key.Pair(), f(cache.TaggedSource), false)
			},
		},
		{
			Name:     "clean",
			Rewrites: []cache.Artifact{cache.TaggedSource},
			Produces: []cache.Artifact{cache.Lines},
			Run: func(context.Context) error {
				st, err := corpus.CleanMonolingualFiles(f(cache.Lines), f(cache.TaggedSource), t.lines)
				if err != nil {
					return err
				}
				t.recordClean(st)
				return nil
			},
		},
		{
			Name:     "language-model",
			Banner:   lmBanner,
			Produces: []cache.Artifact{cache.LanguageModelGz, cache.LanguageModelTmp, cache.LanguageModel},
			Removes:  []cache.Artifact{cache.LanguageModelGz, cache.LanguageModelTmp},
			Run:      t.languageModel,
		},
		{
			Name:     "multitrans",
			Banner:   "Running multitrans ...",
			Consumes: []cache.Artifact{cache.TaggedSource},
			Produces: []cache.Artifact{cache.Ambiguous, cache.MultiTrimmed},
			Run:      t.multitrans,
		},
		{
			Name:     "rank",
			Banner:   "Running irstlm-ranker on mode after biltrans ...",
			Consumes: []cache.Artifact{cache.MultiTrimmed, cache.LanguageModel},
			Produces: []cache.Artifact{cache.Ranked},
			Run:      t.rank,
		},
		{
			Name:     "frac-freq",
			Banner:   "Turning ranked ngrams into rules ...",
			Consumes: []cache.Artifact{cache.Ambiguous, cache.Ranked},
			Produces: []cache.Artifact{cache.FracFreq},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.BiltransExtractFracFreq, f(cache.FracFreq),
					[]string{f(cache.Ambiguous), f(cache.Ranked)})
			},
		},
		{
			Name:     "ngrams",
			Consumes: []cache.Artifact{cache.Ambiguous, cache.Ranked},
			Produces: []cache.Artifact{cache.Ngrams},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.BiltransCountPatternsNgram, f(cache.Ngrams),
					[]string{f(cache.Ambiguous), f(cache.Ranked)})
			},
		},
		{
			Name:     "prune",
			Consumes: []cache.Artifact{cache.FracFreq, cache.Ngrams},
			Produces: []cache.Artifact{cache.Patterns},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.NgramPruningFrac, f(cache.Patterns),
					[]string{f(cache.FracFreq), f(cache.Ngrams)})
			},
		},
		{
			Name:     "rules",
			Consumes: []cache.Artifact{cache.Patterns},
			Produces: []cache.Artifact{rulesArtifact},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.NgramsToRules, t.artifactPath(rulesArtifact),
					[]string{f(cache.Patterns)}, t.crisphold())
			},
		},
	}
}

// languageModel builds the target-language model with IRSTLM unless a
// prebuilt one is configured.
func (t *Trainer) languageModel(ctx context.Context) error {
	if t.cfg.TLModel != "" {
		t.logger.Info("using prebuilt language model", "tl_model", t.cfg.TLModel)
		return errSkipped
	}

	f := t.dir.File
	build := pipe.Spec{
		Name: filepath.Join(t.cfg.IRSTLMDir, "bin", "build-lm.sh"),
		Args: []string{"-i", t.cfg.CorpusTL, "-o", f(cache.LanguageModelGz), "-t", f(cache.LanguageModelTmp)},
		Env:  []string{"IRSTLM=" + t.cfg.IRSTLMDir},
	}
	runErr := t.deps.Executor.Run(ctx, []pipe.Spec{build}, pipe.Options{Stdout: t.logFile, Stderr: t.logFile})
	if err := t.tolerateExit(ctx, []pipe.Spec{build}, runErr); err != nil {
		return err
	}
	return gunzipFile(f(cache.LanguageModelGz), f(cache.LanguageModel))
}

func gunzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open compressed language model: %w", err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("read compressed language model: %w", err)
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create language model: %w", err)
	}
	if _, err := io.Copy(out, zr); err != nil {
		_ = out.Close()
		return fmt.Errorf("decompress language model: %w", err)
	}
	return out.Close()
}

// multitrans writes the ambiguous and trimmed translation streams. Each
// chain finishes before the next one starts.
func (t *Trainer) multitrans(ctx context.Context) error {
	f := t.dir.File
	autobil, err := t.deps.Discoverer.Autobil(t.key.Pair())
	if err != nil {
		return err
	}
	runs := []struct {
		args []string
		out  cache.Artifact
	}{
		{[]string{"-b", "-t", "-n", "-f", autobil}, cache.Ambiguous},
		{[]string{"-m", "-t", "-f", autobil}, cache.MultiTrimmed},
	}
	for _, r := range runs {
		spec := pipe.Command("multitrans", r.args...)
		if err := t.runChain(ctx, []pipe.Spec{spec}, f(cache.TaggedSource), f(r.out), 0); err != nil {
			return err
		}
	}
	return nil
}

// rank scores the trimmed translations through the rest of the mode
// pipeline and the language-model ranker.
func (t *Trainer) rank(ctx context.Context) error {
	f := t.dir.File
	after, err := t.deps.Discoverer.AfterBiltrans(t.key.Pair())
	if err != nil {
		return err
	}
	ranker := pipe.Command("irstlm-ranker", t.artifactPath(cache.LanguageModel), f(cache.MultiTrimmed), "-f")
	specs := pipe.Flatten(after, []pipe.Spec{ranker})
	return t.runChain(ctx, specs, f(cache.MultiTrimmed), f(cache.Ranked), 0)
}
