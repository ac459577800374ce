package planner

import "fmt"

// Persona selects whose planner data a collection name addresses. Every
// persona gets its own set of prefixed collections.
type Persona string

const (
	PersonaM Persona = "M"
	PersonaY Persona = "Y"
)

// Valid reports whether the persona is one of the known values.
func (p Persona) Valid() bool {
	return p == PersonaM || p == PersonaY
}

func (p Persona) Tasks() string     { return string(p) + "_tasks" }
func (p Persona) Schedule() string  { return string(p) + "_schedule" }
func (p Persona) Courses() string   { return string(p) + "_courses" }
func (p Persona) Grades() string    { return string(p) + "_grades" }
func (p Persona) Reminders() string { return string(p) + "_reminders" }
func (p Persona) Archive() string   { return string(p) + "_archive" }

// Lessons addresses the lesson subcollection nested under a course.
func (p Persona) Lessons(courseID string) string {
	return fmt.Sprintf("%s/%s/lessons", p.Courses(), courseID)
}

// Notes addresses the note subcollection nested under a lesson.
func (p Persona) Notes(courseID, lessonID string) string {
	return fmt.Sprintf("%s/%s/notes", p.Lessons(courseID), lessonID)
}
