package dto

// RosterQuery captures GET /sections/{id}/students query parameters.
type RosterQuery struct {
	Format       string `form:"format" validate:"omitempty,oneof=json csv pdf xlsx"`
	AcademicYear string `form:"academicYear" validate:"omitempty,max=16"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	PageSize     int    `form:"pageSize" validate:"omitempty,min=1,max=500"`
}
