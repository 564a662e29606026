// Package pipe builds and runs chains of external processes connected by OS
// pipes, the way a shell runs `a | b | c`.
//
// A chain is an ordered list of Spec values. Process i's standard output
// feeds process i+1's standard input; the caller supplies the first stdin,
// the last stdout, and one stderr shared by every stage. No shell is
// involved: argument lists are passed to the kernel verbatim.
//
// Monitoring:
//   - When Options.ExpectedLines is positive and the monitor executable
//     (pv by default) is on PATH, "pv -l -s N" is appended to the chain.
//   - The monitor's stderr goes to the executor's diagnostic stream, never to
//     the shared stderr, so progress-bar redraws stay out of pipeline logs.
//
// Failure model:
//   - A stage that cannot be started is fatal for the whole chain. Stages
//     already running are killed and reaped; nothing is retried.
//   - Chain.Wait reports the exit status of the last process only. Interior
//     stages are reaped but their exit status is logged, not returned; a
//     failing interior stage shows up downstream as short or empty output.
//   - No timeout is applied. Cancelling the context kills every stage.
package pipe
