package models

import "time"

// Level is a grade level (e.g. Tronc Commun). One level exists per case-normalised name.
type Level struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Section is a class group owned by exactly one level. Names are unique per level only.
type Section struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	LevelID   string    `db:"level_id" json:"level_id"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SectionDetail joins the owning level for listings and exports.
type SectionDetail struct {
	Section
	LevelName string `db:"level_name" json:"level_name"`
}
