// Package task schedules units of work on affinity lanes.
//
// A Scheduler owns four lanes:
//
//   - Exclusive: one task at a time, in submission order. Commands that can
//     write repository metadata (commit, checkout, branch, pull) run here.
//   - ExclusiveNetwork: a second serial lane for commands that talk to a
//     remote.
//   - Concurrent: read-only queries, run in parallel up to MaxParallelism.
//   - UIThread: a single goroutine that delivers already computed results in
//     order, such as subscriber notifications.
//
// Tasks move through Queued, Running and one of Completed, Failed or
// Cancelled. Cancellation is cooperative: a queued task is cancelled at once
// and never runs, a running task sees its context cancelled and reaches
// Cancelled if it then returns an error. The scheduler does not retry and
// does not interpret task errors.
//
//	s := task.NewScheduler(task.DefaultConfig())
//	defer s.Stop(context.Background())
//
//	h, _ := task.Schedule(s, "git status", task.Concurrent, func(ctx context.Context) (string, error) {
//	    return runStatus(ctx)
//	})
//	out, err := h.Wait(ctx)
package task
