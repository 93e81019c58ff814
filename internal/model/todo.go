// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/todo-tracker/internal/apperror"
)

// Title and priority bounds.
const (
	MaxTitleLength = 200

	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// Todo is the only persisted entity: one task with a completion flag.
//
// ID is assigned by the database (INTEGER PRIMARY KEY AUTOINCREMENT) and never
// reused, even after the row is deleted. A zero ID means "not stored yet".
//
// DueDate is a pointer because "no due date" is a real state, distinct from
// any calendar date. It marshals to JSON null when absent.
type Todo struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Priority  int    `json:"priority"`
	DueDate   *Date  `json:"dueDate"`
}

// TodoCreate is the input of a create call. Priority and DueDate are optional;
// a missing priority is derived from the due date.
type TodoCreate struct {
	Title    string `json:"title"`
	Priority *int   `json:"priority"`
	DueDate  *Date  `json:"dueDate"`
}

// TodoPatch describes a partial update. Every field is an Optional so the
// three cases a JSON body can express stay distinct:
//
//	{}                    → field absent, leave it alone
//	{"completed": false}  → explicit value, set it (un-completing is a real update)
//	{"dueDate": null}     → explicit null, clear it (only meaningful for dueDate)
type TodoPatch struct {
	Title     Optional[string] `json:"title"`
	Completed Optional[bool]   `json:"completed"`
	Priority  Optional[int]    `json:"priority"`
	DueDate   Optional[Date]   `json:"dueDate"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TodoPatch) IsEmpty() bool {
	return !p.Title.IsSet() && !p.Completed.IsSet() && !p.Priority.IsSet() && !p.DueDate.IsSet()
}

// Apply copies every supplied field of p onto t. Validation is the caller's job.
func (p TodoPatch) Apply(t *Todo) {
	if v, ok := p.Title.Get(); ok {
		t.Title = v
	}
	if v, ok := p.Completed.Get(); ok {
		t.Completed = v
	}
	if v, ok := p.Priority.Get(); ok {
		t.Priority = v
	}
	if p.DueDate.IsSet() {
		if v, ok := p.DueDate.Get(); ok {
			t.DueDate = &v
		} else {
			t.DueDate = nil
		}
	}
}

// NormalizeTitle trims surrounding whitespace and enforces the 1..200 character
// bound. Length is counted in runes, so "café" is 4 characters, not 5 bytes.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

// ValidatePriority checks that p is one of PriorityLow..PriorityHigh.
func ValidatePriority(p int) error {
	if p < PriorityLow || p > PriorityHigh {
		return apperror.ValidationFailed("priority",
			fmt.Sprintf("priority must be between %d and %d", PriorityLow, PriorityHigh))
	}
	return nil
}

// PriorityForDueDate derives a priority from how soon the todo is due:
//
//	no due date               → medium
//	overdue, today, tomorrow  → high
//	within a week             → medium
//	later                     → low
func PriorityForDueDate(due *Date, today Date) int {
	if due == nil {
		return PriorityMedium
	}
	days := due.DaysSince(today)
	switch {
	case days <= 1:
		return PriorityHigh
	case days <= 7:
		return PriorityMedium
	default:
		return PriorityLow
	}
}
