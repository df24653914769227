// Package jobs holds the concrete task handlers of the coursework platform:
// plagiarism checks, bulk enrollment, grade notifications and retention
// cleanup. Each handler is a plain method with a typed parameter struct and
// is bound to its task type by RegisterAll.
//
// Handlers classify their own failures: a missing entity is wrapped with
// task.Permanent so it is not retried, while storage errors are returned
// as-is and retried under the engine's backoff policy.
package jobs
