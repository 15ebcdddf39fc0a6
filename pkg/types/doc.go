// Package types provides shared type definitions for the tutor matching core.
//
// The types here are the vocabulary every other package speaks: the feature
// snapshots of student and tutor profiles, the class rows attached to them,
// weekly availability slots, weighting configuration and the scored rows that
// come out of the two ranking stages.
//
// # Profiles
//
// StudentFeatures and TutorFeatures are read-only snapshots assembled by the
// storage layer. The text fields Bio, HelpNeeded/HelpProvided and Locations
// are the inputs to the three embedding slots:
//
//	student := &types.StudentFeatures{
//	    UserID:     7,
//	    Bio:        "first year, struggling with proofs",
//	    HelpNeeded: []string{"calculus", "derivatives"},
//	    Locations:  []string{"library"},
//	}
//
// # Class Rows
//
// Class rows are consumed through the FieldGetter capability so scoring code
// can read loosely typed rows (decoded JSON, ORM records) as well as the
// concrete StudentClass and TutorClass structs:
//
//	rows := types.StudentClassRows(student.Classes)
//	id, ok := rows[0].Field("class_id")
//
// # Scores
//
// Candidate is the output of stage one retrieval. RankedMatch is the output of
// stage two and carries every component signal next to the final score, all
// of which are persisted with a match run.
package types
