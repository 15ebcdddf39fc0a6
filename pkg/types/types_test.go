package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinList(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  string
	}{
		{name: "nil", items: nil, want: ""},
		{name: "blanks only", items: []string{"", "  ", "\t"}, want: ""},
		{name: "trims entries", items: []string{" calculus ", "derivatives"}, want: "calculus, derivatives"},
		{name: "drops blanks", items: []string{"a", " ", "b"}, want: "a, b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinList(tt.items))
		})
	}
}

func TestGradePoints(t *testing.T) {
	assert.Equal(t, 4.3, GradePoints("A+"))
	assert.Equal(t, 4.0, GradePoints(" a "))
	assert.Equal(t, 2.0, GradePoints("c"))
	assert.Equal(t, 0.0, GradePoints("F"))
	assert.Equal(t, 0.0, GradePoints("E"))
	assert.Equal(t, 0.0, GradePoints(""))
}

func TestClassRowsFieldGetter(t *testing.T) {
	rows := StudentClassRows([]StudentClass{{ClassID: 3, HelpLevel: 7, EstimatedGrade: "B"}})
	require.Len(t, rows, 1)

	id, ok := rows[0].Field(ClassFieldID)
	require.True(t, ok)
	assert.Equal(t, int64(3), id)

	_, ok = rows[0].Field("unknown")
	assert.False(t, ok)

	tutorRows := TutorClassRows([]TutorClass{{ClassID: 3}})
	taed, ok := tutorRows[0].Field(ClassFieldHasTAed)
	require.True(t, ok)
	assert.Equal(t, false, taed)

	m := MapRow{"class_id": float64(3), "grade_received": nil}
	_, ok = m.Field("grade_received")
	assert.False(t, ok)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)
	assert.Equal(t, "09:30", FormatClock(m))

	m, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, m)

	for _, bad := range []string{"", "9", "25:00", "10:60", "24:01", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestAvailabilitySlotValidate(t *testing.T) {
	assert.NoError(t, AvailabilitySlot{DayOfWeek: 0, StartMinute: 540, EndMinute: 600}.Validate())
	assert.ErrorIs(t, AvailabilitySlot{DayOfWeek: 7, StartMinute: 540, EndMinute: 600}.Validate(), ErrInvalidSlot)
	assert.ErrorIs(t, AvailabilitySlot{DayOfWeek: 1, StartMinute: 600, EndMinute: 600}.Validate(), ErrInvalidSlot)
	assert.Equal(t, 0, AvailabilitySlot{StartMinute: 600, EndMinute: 540}.Duration())
}

func TestWeightsDivisor(t *testing.T) {
	assert.Equal(t, 2.5, DefaultFieldWeights().Divisor())
	assert.Equal(t, 1.0, FieldWeights{}.Divisor())
	assert.InDelta(t, 1.0, DefaultRerankWeights().Divisor(), 1e-12)
	assert.Equal(t, 1.0, RerankWeights{}.Divisor())

	assert.ErrorIs(t, FieldWeights{Bio: -1}.Validate(), ErrInvalidWeights)
	assert.ErrorIs(t, RerankWeights{Location: -0.1}.Validate(), ErrInvalidWeights)
}

func TestSameTexts(t *testing.T) {
	s := &StudentFeatures{Bio: "hi", HelpNeeded: []string{"a", "b"}}
	same := &StudentFeatures{Bio: "hi", HelpNeeded: []string{" a", "b ", ""}}
	diff := &StudentFeatures{Bio: "hi", Locations: []string{"library"}, HelpNeeded: []string{"a", "b"}}

	assert.True(t, SameTexts(s.Texts(), same.Texts()))
	assert.False(t, SameTexts(s.Texts(), diff.Texts()))
}
