package types

import "strings"

// FieldGetter is the read capability scoring code needs from a class row.
// Field returns the value stored under name and whether it was present.
type FieldGetter interface {
	Field(name string) (any, bool)
}

// Class row field names understood by the class strength signal
const (
	ClassFieldID        = "class_id"
	ClassFieldHelpLevel = "help_level"
	ClassFieldEstimated = "estimated_grade"
	ClassFieldReceived  = "grade_received"
	ClassFieldHasTAed   = "has_taed"
)

// DefaultHelpLevel is assumed when a student class row carries none
const DefaultHelpLevel = 5

// StudentClass links a student to a class they want help with
type StudentClass struct {
	ClassID        int64
	HelpLevel      int // 1..10
	EstimatedGrade string
}

// Field implements FieldGetter
func (c StudentClass) Field(name string) (any, bool) {
	switch name {
	case ClassFieldID:
		return c.ClassID, c.ClassID != 0
	case ClassFieldHelpLevel:
		return c.HelpLevel, c.HelpLevel != 0
	case ClassFieldEstimated:
		return c.EstimatedGrade, c.EstimatedGrade != ""
	default:
		return nil, false
	}
}

// Validate checks the help level bounds
func (c StudentClass) Validate() error {
	if c.HelpLevel != 0 && (c.HelpLevel < 1 || c.HelpLevel > 10) {
		return ErrInvalidHelpLevel
	}
	return nil
}

// TutorClass links a tutor to a class they have taken
type TutorClass struct {
	ClassID       int64
	Semester      string
	YearTaken     int
	GradeReceived string
	HasTAed       bool
}

// Field implements FieldGetter
func (c TutorClass) Field(name string) (any, bool) {
	switch name {
	case ClassFieldID:
		return c.ClassID, c.ClassID != 0
	case ClassFieldReceived:
		return c.GradeReceived, c.GradeReceived != ""
	case ClassFieldHasTAed:
		return c.HasTAed, true
	default:
		return nil, false
	}
}

// MapRow adapts a loosely typed row, such as decoded JSON, to FieldGetter
type MapRow map[string]any

// Field implements FieldGetter
func (m MapRow) Field(name string) (any, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// StudentClassRows converts student classes for use with FieldGetter consumers
func StudentClassRows(classes []StudentClass) []FieldGetter {
	rows := make([]FieldGetter, len(classes))
	for i, c := range classes {
		rows[i] = c
	}
	return rows
}

// TutorClassRows converts tutor classes for use with FieldGetter consumers
func TutorClassRows(classes []TutorClass) []FieldGetter {
	rows := make([]FieldGetter, len(classes))
	for i, c := range classes {
		rows[i] = c
	}
	return rows
}

// gradePoints maps letter grades onto a 4.3 point scale
var gradePoints = map[string]float64{
	"A+": 4.3,
	"A":  4.0,
	"A-": 3.7,
	"B+": 3.3,
	"B":  3.0,
	"B-": 2.7,
	"C+": 2.3,
	"C":  2.0,
	"D":  1.0,
	"F":  0.0,
}

// MaxGradePoints is the value of the best grade
const MaxGradePoints = 4.3

// GradePoints returns the points for a letter grade. Grades are trimmed and
// upper-cased first; unknown or empty grades are worth 0.
func GradePoints(grade string) float64 {
	return gradePoints[strings.ToUpper(strings.TrimSpace(grade))]
}
