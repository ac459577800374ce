package model

import "time"

// Task is a to-do item.
type Task struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

func (t Task) Fields() map[string]any {
	return map[string]any{"text": t.Text, "completed": t.Completed}
}

// TaskCompletion is the patch applied when a task is checked off.
func TaskCompletion(at time.Time) map[string]any {
	return map[string]any{"completed": true, "completedAt": at}
}

// Course is a course the user is enrolled in.
type Course struct {
	Title string `json:"title"`
}

func (c Course) Fields() map[string]any {
	return map[string]any{"title": c.Title}
}

// Lesson is one lesson inside a course.
type Lesson struct {
	Title string `json:"title"`
}

func (l Lesson) Fields() map[string]any {
	return map[string]any{"title": l.Title}
}

// Grade records a result for a course.
type Grade struct {
	CourseID string  `json:"courseId"`
	Grade    float64 `json:"grade"`
	MaxGrade float64 `json:"maxGrade"`
}

func (g Grade) Fields() map[string]any {
	return map[string]any{"courseId": g.CourseID, "grade": g.Grade, "maxGrade": g.MaxGrade}
}

// Reminder is a dated reminder.
type Reminder struct {
	Text string    `json:"text"`
	Due  time.Time `json:"due"`
}

func (r Reminder) Fields() map[string]any {
	return map[string]any{"text": r.Text, "due": r.Due}
}

// ScheduleEvent is a recurring weekly schedule slot.
type ScheduleEvent struct {
	Title string `json:"title"`
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (e ScheduleEvent) Fields() map[string]any {
	return map[string]any{"title": e.Title, "day": e.Day, "start": e.Start, "end": e.End}
}
