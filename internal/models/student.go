package models

import "time"

// Gender is the canonical two-valued gender stored on student records.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// StudentStatus captures the enrollment state of a student.
type StudentStatus string

const (
	StudentStatusEnrolled       StudentStatus = "ENROLLED"
	StudentStatusTransferredOut StudentStatus = "TRANSFERRED_OUT"
	StudentStatusTransferredIn  StudentStatus = "TRANSFERRED_IN"
	StudentStatusDroppedOut     StudentStatus = "DROPPED_OUT"
	StudentStatusDismissed      StudentStatus = "DISMISSED"
	StudentStatusReintegrated   StudentStatus = "REINTEGRATED"
	StudentStatusNotEnrolled    StudentStatus = "NOT_ENROLLED"
)

// Student is one learner's profile. NationalID is the only natural key used for
// merge and duplicate decisions.
type Student struct {
	ID           string        `db:"id" json:"id"`
	NationalID   string        `db:"national_id" json:"national_id"`
	LastName     string        `db:"last_name" json:"last_name"`
	FirstName    string        `db:"first_name" json:"first_name"`
	Gender       Gender        `db:"gender" json:"gender"`
	DateOfBirth  string        `db:"date_of_birth" json:"date_of_birth"`
	BirthPlace   string        `db:"birth_place" json:"birth_place"`
	AgeGroup     string        `db:"age_group" json:"age_group"`
	Level        string        `db:"level" json:"level"`
	Section      string        `db:"section" json:"section"`
	LevelID      *string       `db:"level_id" json:"level_id,omitempty"`
	SectionID    *string       `db:"section_id" json:"section_id,omitempty"`
	AcademicYear string        `db:"academic_year" json:"academic_year"`
	Status       StudentStatus `db:"status" json:"status"`
	Notes        string        `db:"notes" json:"notes"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName renders the display name used in class lists.
func (s Student) FullName() string {
	switch {
	case s.LastName == "":
		return s.FirstName
	case s.FirstName == "":
		return s.LastName
	}
	return s.LastName + " " + s.FirstName
}

// StudentFilter narrows roster listings.
type StudentFilter struct {
	SectionID    string
	LevelID      string
	AcademicYear string
	Status       StudentStatus
	Page         int
	PageSize     int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
