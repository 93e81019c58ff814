package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/todo-tracker/internal/apperror"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "Buy milk", want: "Buy milk"},
		{name: "trims whitespace", input: "  Buy milk \n", want: "Buy milk"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "exactly 200", input: strings.Repeat("a", MaxTitleLength), want: strings.Repeat("a", MaxTitleLength)},
		{name: "201 is too long", input: strings.Repeat("a", MaxTitleLength+1), wantErr: true},
		// 200 multi-byte runes are 400 bytes but still a valid title.
		{name: "counts runes not bytes", input: strings.Repeat("é", MaxTitleLength), want: strings.Repeat("é", MaxTitleLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTitle(tt.input)
			if tt.wantErr {
				if !errors.Is(err, apperror.ErrValidation) {
					t.Fatalf("NormalizeTitle(%q) error = %v, want ErrValidation", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeTitle(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriorityForDueDate(t *testing.T) {
	today := NewDate(2024, time.January, 15)
	day := func(offset int) *Date {
		d := Date{today.AddDate(0, 0, offset)}
		return &d
	}

	tests := []struct {
		name string
		due  *Date
		want int
	}{
		{"no due date", nil, PriorityMedium},
		{"overdue", day(-3), PriorityHigh},
		{"today", day(0), PriorityHigh},
		{"tomorrow", day(1), PriorityHigh},
		{"in two days", day(2), PriorityMedium},
		{"in a week", day(7), PriorityMedium},
		{"in eight days", day(8), PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityForDueDate(tt.due, today); got != tt.want {
				t.Errorf("PriorityForDueDate() = %d, want %d", got, tt.want)
			}
		})
	}
}

// The whole point of Optional: absent, null and false must decode differently.
func TestTodoPatch_DecodeDistinguishesAbsentNullAndValue(t *testing.T) {
	var patch TodoPatch
	body := `{"completed": false, "dueDate": null}`
	if err := json.Unmarshal([]byte(body), &patch); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if patch.Title.IsSet() {
		t.Error("Title should be absent")
	}
	completed, ok := patch.Completed.Get()
	if !ok || completed {
		t.Errorf("Completed = (%v, %v), want (false, true)", completed, ok)
	}
	if !patch.DueDate.IsNull() {
		t.Error("DueDate should be explicitly null")
	}
	if patch.Priority.IsSet() {
		t.Error("Priority should be absent")
	}
}

func TestTodoPatch_DecodeDate(t *testing.T) {
	var patch TodoPatch
	if err := json.Unmarshal([]byte(`{"dueDate": "2024-02-29"}`), &patch); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	due, ok := patch.DueDate.Get()
	if !ok {
		t.Fatal("DueDate should be set")
	}
	if due.String() != "2024-02-29" {
		t.Errorf("DueDate = %s, want 2024-02-29", due)
	}

	if err := json.Unmarshal([]byte(`{"dueDate": "29/02/2024"}`), &patch); err == nil {
		t.Error("Unmarshal() should reject a date in the wrong format")
	}
}

func TestTodoPatch_Apply(t *testing.T) {
	due := NewDate(2024, time.March, 1)
	todo := Todo{ID: 1, Title: "Buy milk", Completed: true, Priority: PriorityHigh, DueDate: &due}

	TodoPatch{Completed: Some(false)}.Apply(&todo)
	if todo.Completed || todo.Title != "Buy milk" || todo.DueDate == nil {
		t.Errorf("completed-only patch changed other fields: %+v", todo)
	}

	TodoPatch{Title: Some("Buy oat milk")}.Apply(&todo)
	if todo.Title != "Buy oat milk" || todo.Completed {
		t.Errorf("title-only patch produced %+v", todo)
	}

	TodoPatch{DueDate: Null[Date]()}.Apply(&todo)
	if todo.DueDate != nil {
		t.Errorf("null dueDate should clear the date, got %v", todo.DueDate)
	}
}

func TestTodoPatch_IsEmpty(t *testing.T) {
	if !(TodoPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (TodoPatch{DueDate: Null[Date]()}).IsEmpty() {
		t.Error("a null field is still a change")
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date
	if err := d.Scan("2024-01-15"); err != nil {
		t.Fatalf("Scan(string) error = %v", err)
	}
	if d.String() != "2024-01-15" {
		t.Errorf("Scan(string) = %s", d)
	}
	if err := d.Scan([]byte("2023-12-31")); err != nil || d.String() != "2023-12-31" {
		t.Errorf("Scan([]byte) = %s, %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}
