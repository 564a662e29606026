// Package training sequences the lexical-selection training recipes.
//
// A Trainer moves through a fixed set of states:
//
//	Idle -> Validated -> CachePrepared -> ParallelRecipe | NonParallelRecipe -> Complete
//
// with Aborted reachable from any state. Pre-flight asks every overwrite
// question before touching the filesystem; a declined question leaves the
// working directory exactly as it was.
//
// Each recipe is a plan of named stages. A stage declares the cache
// artifacts it consumes, produces, rewrites, and removes; the plan is checked
// as a DAG before anything runs, so no stage can read an artifact that an
// earlier stage has not finished writing. Stages run strictly one after
// another; concurrency exists only inside a single process chain.
//
// Interior chain stages that exit non-zero are not reported. Their effect
// shows up as short or empty artifacts for the next stage to trip on.
package training
