package types

import "strings"

// Role identifies which side of the marketplace a profile belongs to
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Validate checks if the role is one of the two known roles
func (r Role) Validate() error {
	switch r {
	case RoleStudent, RoleTutor:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Field names one of the three embedded text slots of a profile
type Field string

const (
	FieldBio       Field = "bio"
	FieldHelp      Field = "help"
	FieldLocations Field = "locations"
)

// AllFields lists the embedded slots in the order they are refreshed
var AllFields = []Field{FieldBio, FieldHelp, FieldLocations}

// Validate checks if the field is one of the three embedded slots
func (f Field) Validate() error {
	switch f {
	case FieldBio, FieldHelp, FieldLocations:
		return nil
	default:
		return ErrInvalidField
	}
}

// StudentFeatures is a read-only snapshot of a student profile
type StudentFeatures struct {
	UserID     int64
	Bio        string
	HelpNeeded []string
	Locations  []string
	Major      string
	GradYear   int
	Classes    []StudentClass
}

// TutorFeatures is a read-only snapshot of a tutor profile
type TutorFeatures struct {
	UserID          int64
	Bio             string
	HelpProvided    []string
	Locations       []string
	Major           string
	GradYear        int
	HourlyRateCents int
	SessionMode     string
	Classes         []TutorClass
}

// Texts returns the text behind each embedded slot
func (s *StudentFeatures) Texts() map[Field]string {
	return map[Field]string{
		FieldBio:       s.Bio,
		FieldHelp:      JoinList(s.HelpNeeded),
		FieldLocations: JoinList(s.Locations),
	}
}

// Texts returns the text behind each embedded slot
func (t *TutorFeatures) Texts() map[Field]string {
	return map[Field]string{
		FieldBio:       t.Bio,
		FieldHelp:      JoinList(t.HelpProvided),
		FieldLocations: JoinList(t.Locations),
	}
}

// JoinList trims every entry, drops blanks and joins the rest with ", ".
// A nil or all-blank list yields the empty string.
func JoinList(items []string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// SameTexts reports whether two slot maps would produce identical embeddings
func SameTexts(a, b map[Field]string) bool {
	for _, f := range AllFields {
		if a[f] != b[f] {
			return false
		}
	}
	return true
}
