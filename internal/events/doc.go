// Package events carries messages between the task engine and its
// collaborators without direct package dependencies.
//
// The primary components are:
// - TaskRequestEvent: a request to create a background task
// - EventHandler / EventEmitter: in-process delivery of task requests
// - Notification / Sink: user-facing alerts emitted by jobs and the dispatcher
package events
