package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// catalog is an in-memory implementation of the coursework stores.
type catalog struct {
	mu sync.Mutex

	submissions map[uuid.UUID]*domain.Submission
	assignments map[uuid.UUID]*domain.Assignment
	courses     map[uuid.UUID]*domain.Course
	students    map[uuid.UUID]*domain.Student
	paid        map[[2]uuid.UUID]bool
	enrollments []*domain.Enrollment

	listErr   error
	createErr error
}

func newCatalog() *catalog {
	return &catalog{
		submissions: make(map[uuid.UUID]*domain.Submission),
		assignments: make(map[uuid.UUID]*domain.Assignment),
		courses:     make(map[uuid.UUID]*domain.Course),
		students:    make(map[uuid.UUID]*domain.Student),
		paid:        make(map[[2]uuid.UUID]bool),
	}
}

func (c *catalog) addCourse(title string, free bool, instructors ...uuid.UUID) *domain.Course {
	course := &domain.Course{ID: uuid.New(), Title: title, IsFree: free, InstructorIDs: instructors}
	c.courses[course.ID] = course
	return course
}

func (c *catalog) addAssignment(courseID uuid.UUID, title string) *domain.Assignment {
	a := &domain.Assignment{ID: uuid.New(), CourseID: courseID, Title: title}
	c.assignments[a.ID] = a
	return a
}

func (c *catalog) addDueAssignment(courseID uuid.UUID, title string, due time.Time) *domain.Assignment {
	a := c.addAssignment(courseID, title)
	a.DueDate = &due
	return a
}

func (c *catalog) addStudent(email string) *domain.Student {
	s := &domain.Student{ID: uuid.New(), UserID: uuid.New(), Email: email}
	c.students[s.ID] = s
	return s
}

func (c *catalog) addSubmission(assignmentID, studentID uuid.UUID, content string, grade *float64) *domain.Submission {
	s := &domain.Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      content,
		Grade:        grade,
		SubmittedAt:  time.Now().Add(time.Duration(len(c.submissions)) * time.Second),
	}
	c.submissions[s.ID] = s
	return s
}

func (c *catalog) GetByID(_ context.Context, id uuid.UUID) (*domain.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.submissions[id]
	if !ok {
		return nil, store.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *catalog) ListByAssignment(_ context.Context, assignmentID uuid.UUID) ([]*domain.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []*domain.Submission
	for _, s := range c.submissions {
		if s.AssignmentID == assignmentID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (c *catalog) UpdatePlagiarismResult(_ context.Context, id uuid.UUID, score float64, report json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.submissions[id]
	if !ok {
		return store.ErrSubmissionNotFound
	}
	return s.SetPlagiarismResult(score, report)
}

func (c *catalog) GetCourse(_ context.Context, id uuid.UUID) (*domain.Course, error) {
	course, ok := c.courses[id]
	if !ok {
		return nil, store.ErrCourseNotFound
	}
	return course, nil
}

func (c *catalog) GetAssignment(_ context.Context, id uuid.UUID) (*domain.Assignment, error) {
	a, ok := c.assignments[id]
	if !ok {
		return nil, store.ErrAssignmentNotFound
	}
	return a, nil
}

func (c *catalog) GetStudent(_ context.Context, id uuid.UUID) (*domain.Student, error) {
	s, ok := c.students[id]
	if !ok {
		return nil, store.ErrStudentNotFound
	}
	return s, nil
}

func (c *catalog) FindStudentByEmail(_ context.Context, email string) (*domain.Student, error) {
	for _, s := range c.students {
		if strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return nil, store.ErrStudentNotFound
}

func (c *catalog) HasCompletedPayment(_ context.Context, courseID, userID uuid.UUID) (bool, error) {
	return c.paid[[2]uuid.UUID{courseID, userID}], nil
}

func (c *catalog) ListAssignmentsDue(_ context.Context, from, to time.Time) ([]*domain.Assignment, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []*domain.Assignment
	for _, a := range c.assignments {
		if a.DueDate != nil && a.DueDate.After(from) && !a.DueDate.After(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

func (c *catalog) ListStudentsWithoutSubmission(_ context.Context, assignmentID uuid.UUID) ([]*domain.Student, error) {
	a, ok := c.assignments[assignmentID]
	if !ok {
		return nil, nil
	}
	submitted := make(map[uuid.UUID]bool)
	for _, s := range c.submissions {
		if s.AssignmentID == assignmentID {
			submitted[s.StudentID] = true
		}
	}
	var out []*domain.Student
	for _, e := range c.enrollments {
		if e.CourseID == a.CourseID && !submitted[e.StudentID] {
			out = append(out, c.students[e.StudentID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (c *catalog) EnrolledEmails(_ context.Context, courseID uuid.UUID) ([]string, error) {
	var emails []string
	for _, e := range c.enrollments {
		if e.CourseID == courseID {
			emails = append(emails, c.students[e.StudentID].Email)
		}
	}
	return emails, nil
}

func (c *catalog) Create(_ context.Context, e *domain.Enrollment) error {
	if c.createErr != nil {
		return c.createErr
	}
	for _, existing := range c.enrollments {
		if existing.CourseID == e.CourseID && existing.StudentID == e.StudentID {
			return store.ErrEnrollmentExists
		}
	}
	c.enrollments = append(c.enrollments, e)
	return nil
}

func (c *catalog) WithTx(*sql.Tx) store.EnrollmentStore {
	return c
}

// fakeTransactor runs fn without a real transaction.
type fakeTransactor struct {
	calls int
}

func (f *fakeTransactor) InTx(ctx context.Context, fn store.TxFn) error {
	f.calls++
	return fn(ctx, nil)
}

type recordingSink struct {
	mu       sync.Mutex
	received []events.Notification
	failFor  map[uuid.UUID]bool
}

func (s *recordingSink) Emit(_ context.Context, n events.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[n.UserID] {
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingSink) recipients() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.received))
	for _, n := range s.received {
		out = append(out, n.UserID)
	}
	return out
}

type fakePurger struct {
	olderThan time.Duration
	deleted   int64
	err       error
}

func (p *fakePurger) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return p.deleted, p.err
}

var (
	_ store.SubmissionStore = (*catalog)(nil)
	_ store.CourseStore     = (*catalog)(nil)
	_ store.EnrollmentStore = (*catalog)(nil)
)
