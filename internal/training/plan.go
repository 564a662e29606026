package training

import (
	"context"
	"errors"
	"fmt"

	"github.com/heimdalr/dag"

	"github.com/mattjoyce/lextrain/internal/cache"
)

// rulesArtifact is the terminal rule file. It lives in the working
// directory rather than the cache.
const rulesArtifact cache.Artifact = "rules"

// errSkipped marks a stage that had nothing to do.
var errSkipped = errors.New("stage skipped")

// Stage is one step of a recipe.
type Stage struct {
	Name string
	// Banner is printed to the operator before the stage starts.
	Banner   string
	Consumes []cache.Artifact
	Produces []cache.Artifact
	// Rewrites are consumed and replaced in place.
	Rewrites []cache.Artifact
	// Removes are scratch artifacts deleted once the stage succeeds.
	Removes []cache.Artifact
	Run     func(ctx context.Context) error
}

// Plan is an ordered recipe.
type Plan []Stage

// Validate checks that the declared order respects every artifact
// dependency. Each artifact must have exactly one producer declared before
// every stage that reads it, and nothing may read an artifact after a stage
// removed it.
func (p Plan) Validate() error {
	g := dag.NewDAG()
	index := make(map[string]int, len(p))
	producer := make(map[cache.Artifact]string)
	for i, st := range p {
		if st.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if _, dup := index[st.Name]; dup {
			return fmt.Errorf("duplicate stage %q", st.Name)
		}
		if err := g.AddVertexByID(st.Name, st.Name); err != nil {
			return fmt.Errorf("add stage %q: %w", st.Name, err)
		}
		index[st.Name] = i
		for _, a := range st.Produces {
			if prev, ok := producer[a]; ok {
				return fmt.Errorf("%s is produced by both %q and %q", a, prev, st.Name)
			}
			producer[a] = st.Name
		}
	}

	edges := make(map[[2]string]bool)
	for _, st := range p {
		for _, a := range st.reads() {
			from, ok := producer[a]
			if !ok {
				return fmt.Errorf("stage %q consumes %s, which no stage produces", st.Name, a)
			}
			key := [2]string{from, st.Name}
			if from == st.Name || edges[key] {
				continue
			}
			edges[key] = true
			if err := g.AddEdge(from, st.Name); err != nil {
				return fmt.Errorf("order %s -> %s: %w", from, st.Name, err)
			}
		}
	}

	for _, st := range p {
		ancestors, err := g.GetAncestors(st.Name)
		if err != nil {
			return fmt.Errorf("ancestors of %q: %w", st.Name, err)
		}
		for id := range ancestors {
			if index[id] > index[st.Name] {
				return fmt.Errorf("stage %q is declared before its dependency %q", st.Name, id)
			}
		}
	}

	removedBy := make(map[cache.Artifact]string)
	for _, st := range p {
		for _, a := range st.reads() {
			if by, gone := removedBy[a]; gone {
				return fmt.Errorf("stage %q reads %s after %q removed it", st.Name, a, by)
			}
		}
		for _, a := range st.Removes {
			if _, ok := producer[a]; !ok {
				return fmt.Errorf("stage %q removes %s, which no stage produces", st.Name, a)
			}
			removedBy[a] = st.Name
		}
	}
	return nil
}

func (st Stage) reads() []cache.Artifact {
	return append(append([]cache.Artifact(nil), st.Consumes...), st.Rewrites...)
}

// Names returns stage names in order.
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, st := range p {
		names[i] = st.Name
	}
	return names
}
