// Package process runs external commands for the repository layer.
//
// A Runner executes one Command at a time per call, captures stdout and
// stderr and maps the outcome to a Result or a *Failure:
//
//	r := process.NewRunner(process.WithExecutable("git"))
//	res, err := r.Execute(ctx, process.Command{Dir: root, Args: []string{"status"}})
//
// Typed output is produced with Run and a Parser:
//
//	branches, err := process.Run(ctx, r, cmd, parseBranches)
//
// # Failures
//
// Every error returned by Execute is a *Failure whose Kind is one of
// KindProcess, KindTimeout or KindCancelled. Callers that understand the
// command's stderr may refine it to KindConflict or KindNotFound with
// WithKind. Failures match their kind's sentinel with errors.Is:
//
//	if errors.Is(err, process.ErrTimeout) { ... }
//
// # Supervision
//
// Each child runs in its own process group and is tracked by a Supervisor.
// Supervisor.Shutdown terminates everything still running, waits out the
// grace period and then kills what is left.
package process
