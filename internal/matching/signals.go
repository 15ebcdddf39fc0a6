package matching

import (
	"math"
	"strconv"
	"strings"

	"github.com/dshills/tutormatch/pkg/types"
)

// taBonus is added to a tutor's grade points when they were a TA
const taBonus = 0.5

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// ClassStrength scores how well the tutor covers the classes the student
// needs. For each student class the tutor also took it multiplies the
// tutor's strength in the class by the student's need, then averages those
// products. Rows without a class id are skipped; no shared class scores 0.
func ClassStrength(tutorClasses, studentClasses []types.FieldGetter) float64 {
	strength := make(map[int64]float64, len(tutorClasses))
	for _, row := range tutorClasses {
		id, ok := classID(row)
		if !ok {
			continue
		}
		points := types.GradePoints(stringField(row, types.ClassFieldReceived))
		if boolField(row, types.ClassFieldHasTAed) {
			points += taBonus
		}
		s := clamp01(points / (types.MaxGradePoints + taBonus))
		// A class listed twice keeps its best record
		if prev, seen := strength[id]; !seen || s > prev {
			strength[id] = s
		}
	}

	var total float64
	var shared int
	for _, row := range studentClasses {
		id, ok := classID(row)
		if !ok {
			continue
		}
		s, ok := strength[id]
		if !ok {
			continue
		}
		total += s * studentNeed(row)
		shared++
	}
	if shared == 0 {
		return 0
	}
	return total / float64(shared)
}

// studentNeed blends the requested help level with how far the estimated
// grade is from the top of the scale. Both halves lie in [0,1].
func studentNeed(row types.FieldGetter) float64 {
	level := float64(types.DefaultHelpLevel)
	if v, ok := floatField(row, types.ClassFieldHelpLevel); ok {
		level = v
	}
	helpNorm := clamp01((level - 1) / 9)

	points := types.GradePoints(stringField(row, types.ClassFieldEstimated))
	inverseGrade := 1 - points/types.MaxGradePoints

	return clamp01(0.5*helpNorm + 0.5*inverseGrade)
}

// AvailabilityOverlap is the share of the student's weekly minutes that fall
// inside tutor slots on the same day. Slots whose end is not after their
// start are ignored on both sides.
func AvailabilityOverlap(studentSlots, tutorSlots []types.AvailabilitySlot) float64 {
	byDay := make(map[int][]types.AvailabilitySlot)
	for _, slot := range tutorSlots {
		if slot.Duration() == 0 {
			continue
		}
		byDay[slot.DayOfWeek] = append(byDay[slot.DayOfWeek], slot)
	}

	var total, overlap int
	for _, s := range studentSlots {
		if s.Duration() == 0 {
			continue
		}
		total += s.Duration()
		for _, t := range byDay[s.DayOfWeek] {
			start := max(s.StartMinute, t.StartMinute)
			end := min(s.EndMinute, t.EndMinute)
			if end > start {
				overlap += end - start
			}
		}
	}
	if total == 0 {
		return 0
	}
	return clamp01(float64(overlap) / float64(total))
}

// LocationMatch is the share of the student's distinct locations the tutor
// also lists. Entries are trimmed and blanks ignored.
func LocationMatch(studentLocations, tutorLocations []string) float64 {
	student := locationSet(studentLocations)
	if len(student) == 0 {
		return 0
	}
	tutor := locationSet(tutorLocations)

	var shared int
	for loc := range student {
		if tutor[loc] {
			shared++
		}
	}
	return float64(shared) / float64(len(student))
}

func locationSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			set[trimmed] = true
		}
	}
	return set
}

// FieldGetter readers. Rows may come from structs, decoded JSON or other
// stores, so ids accept any integer or integral float.

// classID accepts any id the row carries, zero included; a row without the
// field is skipped.
func classID(row types.FieldGetter) (int64, bool) {
	v, ok := row.Field(types.ClassFieldID)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func floatField(row types.FieldGetter, name string) (float64, bool) {
	v, ok := row.Field(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return parsed, err == nil && !math.IsNaN(parsed)
	}
	i, ok := toInt64(v)
	return float64(i), ok
}

func stringField(row types.FieldGetter, name string) string {
	v, ok := row.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolField(row types.FieldGetter, name string) bool {
	v, ok := row.Field(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	n, ok := toInt64(v)
	return ok && n != 0
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return parsed, err == nil
	}
	return 0, false
}
