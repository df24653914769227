// Package domain contains the learning platform entities the background jobs
// read and update: courses, assignments, submissions, students and
// enrollments. The entities are owned by the surrounding platform; this
// package only carries their shape and the invariants the jobs rely on.
package domain
