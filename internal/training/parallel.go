package training

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mattjoyce/lextrain/internal/cache"
	"github.com/mattjoyce/lextrain/internal/corpus"
	"github.com/mattjoyce/lextrain/internal/extract"
	"github.com/mattjoyce/lextrain/internal/pipe"
)

// normalizeChars replaces characters the tagger treats as stream syntax.
var normalizeChars = pipe.Command("tr", `\/$^@`, "?")

func (t *Trainer) parallelPlan() Plan {
	f := t.dir.File
	return Plan{
		{
			Name:     "tag-source",
			Banner:   "Tagging the source side corpus ...",
			Produces: []cache.Artifact{cache.TaggedSource},
			Run: func(ctx context.Context) error {
				return t.tagCorpus(ctx, t.cfg.CorpusSL, t.key.Pair(), f(cache.TaggedSource), true)
			},
		},
		{
			Name:     "tag-target",
			Banner:   "Tagging the target side corpus ...",
			Produces: []cache.Artifact{cache.TaggedTarget},
			Run: func(ctx context.Context) error {
				return t.tagCorpus(ctx, t.cfg.CorpusTL, t.key.ReversePair(), f(cache.TaggedTarget), true)
			},
		},
		{
			Name:     "merge",
			Banner:   "Combining tagged corpora ...",
			Rewrites: []cache.Artifact{cache.TaggedSource, cache.TaggedTarget},
			Produces: []cache.Artifact{cache.Lines, cache.TaggedMerged},
			Run: func(ctx context.Context) error {
				st, err := corpus.MergeParallelFiles(corpus.ParallelFiles{
					Lines:  f(cache.Lines),
					Source: f(cache.TaggedSource),
					Target: f(cache.TaggedTarget),
					Merged: f(cache.TaggedMerged),
				}, t.lines)
				if err != nil {
					return err
				}
				t.recordClean(st)
				return nil
			},
		},
		{
			Name:     "align",
			Banner:   "Aligning parallel corpus ...",
			Consumes: []cache.Artifact{cache.TaggedMerged},
			Rewrites: []cache.Artifact{cache.TaggedSource, cache.TaggedTarget},
			Produces: []cache.Artifact{cache.Alignment},
			Run: func(ctx context.Context) error {
				align := pipe.Command(t.cfg.FastAlign, "-i", f(cache.TaggedMerged), "-d", "-o", "-v")
				if err := t.runChain(ctx, []pipe.Spec{align}, "", f(cache.Alignment), 0); err != nil {
					return err
				}
				for _, a := range []cache.Artifact{cache.TaggedSource, cache.TaggedTarget} {
					if err := corpus.UnescapeFile(f(a)); err != nil {
						return fmt.Errorf("unescape %s: %w", t.key.FileName(a), err)
					}
				}
				return nil
			},
		},
		{
			Name:     "biltrans",
			Banner:   "Processing tagger output and creating phrase table ...",
			Consumes: []cache.Artifact{cache.TaggedSource, cache.TaggedTarget},
			Produces: []cache.Artifact{cache.BiltransTarget, cache.BiltransSource, cache.CleanBiltrans},
			Run:      t.biltrans,
		},
		{
			Name:     "phrasetable",
			Consumes: []cache.Artifact{cache.BiltransTarget, cache.BiltransSource, cache.Alignment},
			Produces: []cache.Artifact{cache.PhraseTable},
			Removes:  []cache.Artifact{cache.BiltransTarget, cache.BiltransSource},
			Run: func(context.Context) error {
				n, err := corpus.JoinPhraseTableFiles(f(cache.PhraseTable),
					f(cache.BiltransTarget), f(cache.BiltransSource), f(cache.Alignment))
				if err != nil {
					return err
				}
				t.logger.Debug("phrase table written", "rows", n)
				return nil
			},
		},
		{
			Name:     "candidates",
			Banner:   "Turning aligned ngrams into rules ...",
			Consumes: []cache.Artifact{cache.PhraseTable, cache.CleanBiltrans},
			Produces: []cache.Artifact{cache.Candidates},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.ExtractSentences, f(cache.Candidates),
					[]string{f(cache.PhraseTable), f(cache.CleanBiltrans)})
			},
		},
		{
			Name:     "freq-lexicon",
			Consumes: []cache.Artifact{cache.Candidates},
			Produces: []cache.Artifact{cache.FreqLexicon},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.ExtractFreqLexicon, f(cache.FreqLexicon),
					[]string{f(cache.Candidates)})
			},
		},
		{
			Name:     "ngrams",
			Consumes: []cache.Artifact{cache.FreqLexicon, cache.Candidates},
			Produces: []cache.Artifact{cache.Ngrams},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.NgramCountPatterns, f(cache.Ngrams),
					[]string{f(cache.FreqLexicon), f(cache.Candidates)},
					t.crisphold(), strconv.Itoa(t.cfg.MaxRules))
			},
		},
		{
			Name:     "rules",
			Consumes: []cache.Artifact{cache.Ngrams},
			Produces: []cache.Artifact{rulesArtifact},
			Run: func(ctx context.Context) error {
				return t.runExtract(ctx, extract.NgramsToRules, t.artifactPath(rulesArtifact),
					[]string{f(cache.Ngrams)}, t.crisphold())
			},
		},
	}
}

// tagCorpus runs the first training-lines lines of a corpus through the
// direction's tagger and pretransfer.
func (t *Trainer) tagCorpus(ctx context.Context, src, direction, out string, normalize bool) error {
	specs := []pipe.Spec{pipe.Command("head", "-n", strconv.Itoa(t.lines))}
	if normalize {
		specs = append(specs, normalizeChars)
	}
	specs = append(specs, t.tagger(direction), pipe.Command("apertium-pretransfer"))
	return t.runChain(ctx, specs, src, out, t.lines)
}

// biltrans runs process-tagger-output over both tagged sides. The source
// side is processed twice: once for the phrase table and once for the
// clean biltrans kept for sentence extraction.
func (t *Trainer) biltrans(ctx context.Context) error {
	f := t.dir.File
	forward, err := t.deps.Discoverer.Autobil(t.key.Pair())
	if err != nil {
		return err
	}
	backward, err := t.deps.Discoverer.Autobil(t.key.ReversePair())
	if err != nil {
		return err
	}

	runs := []struct {
		autobil string
		in, out cache.Artifact
	}{
		{backward, cache.TaggedTarget, cache.BiltransTarget},
		{forward, cache.TaggedSource, cache.BiltransSource},
		{forward, cache.TaggedSource, cache.CleanBiltrans},
	}
	for _, r := range runs {
		spec := pipe.Command("process-tagger-output", r.autobil)
		if err := t.runChain(ctx, []pipe.Spec{spec}, f(r.in), f(r.out), 0); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) recordClean(st corpus.Stats) {
	t.metrics.SetCleanLines(st.Kept)
	t.logger.Info("dropped lines without analyses", "read", st.Read, "kept", st.Kept, "dropped", st.Dropped())
}
