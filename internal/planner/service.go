// Package planner implements the study-planner domain operations on top of
// the datastore adapter: tasks, weekly schedule, courses with nested lessons
// and notes, grades, reminders, and the archive flow.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/studyplanner/planner-service/internal/datastore"
	"github.com/studyplanner/planner-service/internal/model"
)

// Service exposes planner operations for one persona.
type Service struct {
	data    *datastore.Adapter
	persona Persona
	now     func() time.Time
}

// NewService returns a Service scoped to the persona's collections.
func NewService(data *datastore.Adapter, persona Persona) (*Service, error) {
	if !persona.Valid() {
		return nil, fmt.Errorf("unknown persona %q", persona)
	}
	return &Service{data: data, persona: persona, now: time.Now}, nil
}

// Persona returns the persona the service operates for.
func (s *Service) Persona() Persona { return s.persona }

// --- Tasks ---

func (s *Service) AddTask(ctx context.Context, text string) (string, error) {
	return s.data.Create(ctx, s.persona.Tasks(), model.Task{Text: text}.Fields())
}

// CompleteTask marks the task done and stamps the completion time.
func (s *Service) CompleteTask(ctx context.Context, taskID string) error {
	return s.data.Update(ctx, s.persona.Tasks(), taskID, model.TaskCompletion(s.now()))
}

func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.data.Delete(ctx, s.persona.Tasks(), taskID)
}

func (s *Service) Tasks(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Tasks(), "")
}

// ArchiveTask copies the task into the archive collection and then removes
// the original. The copy keeps the task's fields and records where it came
// from and when it was archived.
func (s *Service) ArchiveTask(ctx context.Context, taskID string) error {
	rec, err := s.data.FetchDocument(ctx, s.persona.Tasks(), taskID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("task %s not found", taskID)
	}

	fields := archiveFields(rec)
	fields["sourceCollection"] = s.persona.Tasks()
	fields["archivedAt"] = s.now()
	if _, err := s.data.Create(ctx, s.persona.Archive(), fields); err != nil {
		return err
	}
	return s.data.Delete(ctx, s.persona.Tasks(), taskID)
}

// --- Schedule ---

func (s *Service) AddEvent(ctx context.Context, event model.ScheduleEvent) (string, error) {
	return s.data.Create(ctx, s.persona.Schedule(), event.Fields())
}

func (s *Service) Schedule(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Schedule(), "day")
}

func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	return s.data.Delete(ctx, s.persona.Schedule(), eventID)
}

// --- Courses, lessons, notes ---

func (s *Service) AddCourse(ctx context.Context, title string) (string, error) {
	return s.data.Create(ctx, s.persona.Courses(), model.Course{Title: title}.Fields())
}

func (s *Service) Courses(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Courses(), "")
}

func (s *Service) AddLesson(ctx context.Context, courseID, title string) (string, error) {
	return s.data.Create(ctx, s.persona.Lessons(courseID), model.Lesson{Title: title}.Fields())
}

func (s *Service) Lessons(ctx context.Context, courseID string) ([]model.Record, error) {
	return s.list(ctx, s.persona.Lessons(courseID), "")
}

func (s *Service) AddNote(ctx context.Context, courseID, lessonID string, note model.NoteBlock) (string, error) {
	if !note.Type.Valid() {
		return "", fmt.Errorf("unknown note type %q", note.Type)
	}
	return s.data.Create(ctx, s.persona.Notes(courseID, lessonID), note.Fields())
}

func (s *Service) Notes(ctx context.Context, courseID, lessonID string) ([]model.Record, error) {
	return s.list(ctx, s.persona.Notes(courseID, lessonID), "")
}

// --- Grades ---

func (s *Service) AddGrade(ctx context.Context, grade model.Grade) (string, error) {
	return s.data.Create(ctx, s.persona.Grades(), grade.Fields())
}

func (s *Service) Grades(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Grades(), "")
}

// --- Reminders ---

func (s *Service) AddReminder(ctx context.Context, reminder model.Reminder) (string, error) {
	return s.data.Create(ctx, s.persona.Reminders(), reminder.Fields())
}

func (s *Service) Reminders(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Reminders(), "due")
}

// --- Archive ---

func (s *Service) Archive(ctx context.Context) ([]model.Record, error) {
	return s.list(ctx, s.persona.Archive(), "archivedAt")
}

func (s *Service) list(ctx context.Context, colName, orderField string) ([]model.Record, error) {
	q, err := s.data.QueryOrdered(colName, orderField)
	if err != nil {
		return nil, err
	}
	return s.data.FetchOnce(ctx, q)
}

// archiveFields copies a record's user fields, dropping the store-assigned
// id and timestamp so the archive copy gets fresh ones.
func archiveFields(rec model.Record) map[string]any {
	fields := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == model.FieldID || k == model.FieldCreatedAt {
			continue
		}
		fields[k] = v
	}
	return fields
}
