// Package task implements the background task engine: persisted task
// records and their state machine, the handler registry with per-type
// parameter validation, the retry policy, and the worker dispatcher that
// executes handlers with a hard timeout.
//
// Records move pending -> processing -> completed | failed. The only way back
// is failed -> pending, taken while retries < max_retries. All transitions
// are conditional on the current status, so two workers can never both claim
// the same record.
package task
