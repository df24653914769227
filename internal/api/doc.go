// Package api exposes the task engine over HTTP: enqueueing a task,
// reading its status and cancelling it before it runs. Handlers translate
// engine errors into status codes and never return raw error text.
package api
