// Package cache owns the per-run cache directory and names every artifact in it.
//
// Artifact names are pure functions of the run key (corpus, language pair,
// mode) and an artifact tag, so the directory contract can be checked without
// running a recipe.
package cache

import (
	"fmt"
	"path/filepath"
)

// Key identifies a training run. Two runs with the same key share a cache
// directory name and a rule file name.
type Key struct {
	Corpus   string
	SL       string
	TL       string
	Parallel bool
}

// Pair returns the SL-TL direction.
func (k Key) Pair() string { return k.SL + "-" + k.TL }

// ReversePair returns the TL-SL direction.
func (k Key) ReversePair() string { return k.TL + "-" + k.SL }

// Mode returns "parallel" or "non-parallel".
func (k Key) Mode() string {
	if k.Parallel {
		return "parallel"
	}
	return "non-parallel"
}

// DirName returns the cache directory name, cache-<corpus>-<sl>-<tl> with a
// -np suffix for non-parallel runs.
func (k Key) DirName() string {
	name := fmt.Sprintf("cache-%s-%s-%s", k.Corpus, k.SL, k.TL)
	if !k.Parallel {
		name += "-np"
	}
	return name
}

// RulesName returns the terminal rule file name. It lives in the working
// directory, not the cache.
func (k Key) RulesName() string {
	tag := "1"
	if !k.Parallel {
		tag = "np"
	}
	return fmt.Sprintf("%s.%s.ngrams-lm-%s.lrx", k.Corpus, k.Pair(), tag)
}

// LockName returns the lock file guarding the cache directory.
func (k Key) LockName() string { return "." + k.DirName() + ".lock" }

// Artifact tags a file inside the cache directory.
type Artifact string

const (
	TaggedSource     Artifact = "tagged-source"
	TaggedTarget     Artifact = "tagged-target"
	Lines            Artifact = "lines"
	TaggedMerged     Artifact = "tagged-merged"
	Alignment        Artifact = "alignment"
	BiltransTarget   Artifact = "biltrans-target"
	BiltransSource   Artifact = "biltrans-source"
	CleanBiltrans    Artifact = "clean-biltrans"
	PhraseTable      Artifact = "phrasetable"
	Candidates       Artifact = "candidates"
	FreqLexicon      Artifact = "freq-lexicon"
	Ngrams           Artifact = "ngrams"
	LanguageModel    Artifact = "language-model"
	LanguageModelGz  Artifact = "language-model-gz"
	LanguageModelTmp Artifact = "language-model-tmp"
	Ambiguous        Artifact = "ambig"
	MultiTrimmed     Artifact = "multi-trimmed"
	Ranked           Artifact = "ranked"
	FracFreq         Artifact = "frac-freq"
	Patterns         Artifact = "patterns"
	TrainingLog      Artifact = "training-log"
	LedgerDB         Artifact = "ledger"
	MetricsFile      Artifact = "metrics"
)

// FileName returns the artifact's file name inside the cache directory.
func (k Key) FileName(a Artifact) string {
	c, pair := k.Corpus, k.Pair()
	switch a {
	case TaggedSource:
		return fmt.Sprintf("%s.tagged.%s", c, k.SL)
	case TaggedTarget:
		return fmt.Sprintf("%s.tagged.%s", c, k.TL)
	case Lines:
		return c + ".lines"
	case TaggedMerged:
		return fmt.Sprintf("%s.tagged-merged.%s", c, pair)
	case Alignment:
		return fmt.Sprintf("%s.align.%s", c, pair)
	case BiltransTarget:
		return fmt.Sprintf("%s.biltrans.%s", c, k.ReversePair())
	case BiltransSource:
		return fmt.Sprintf("%s.biltrans.%s", c, pair)
	case CleanBiltrans:
		return fmt.Sprintf("%s.clean_biltrans.%s", c, pair)
	case PhraseTable:
		return fmt.Sprintf("%s.phrasetable.%s", c, pair)
	case Candidates:
		return fmt.Sprintf("%s.candidates.%s", c, pair)
	case FreqLexicon:
		return fmt.Sprintf("%s.lex.%s", c, pair)
	case Ngrams:
		if k.Parallel {
			return "ngrams"
		}
		return fmt.Sprintf("%s.%s.ngrams", c, pair)
	case LanguageModel:
		return fmt.Sprintf("%s.%s.%s.lm", c, pair, k.TL)
	case LanguageModelGz:
		return fmt.Sprintf("%s.%s.%s.lm.gz", c, pair, k.TL)
	case LanguageModelTmp:
		return "lm-tmp"
	case Ambiguous, MultiTrimmed, Ranked, Patterns:
		return fmt.Sprintf("%s.%s.%s", c, pair, a)
	case FracFreq:
		return fmt.Sprintf("%s.%s.freq", c, pair)
	case TrainingLog:
		return "training.log"
	case LedgerDB:
		return "ledger.db"
	case MetricsFile:
		return "metrics.prom"
	default:
		return string(a)
	}
}

// Dir is a prepared cache directory for one run.
type Dir struct {
	Key  Key
	Path string
}

// File returns the absolute path of an artifact.
func (d Dir) File(a Artifact) string {
	return filepath.Join(d.Path, d.Key.FileName(a))
}

// LogPath returns the training log path.
func (d Dir) LogPath() string { return d.File(TrainingLog) }
