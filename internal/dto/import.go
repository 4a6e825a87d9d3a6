package dto

import (
	"mime/multipart"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

// ImportForm captures the multipart fields of POST /imports/{variant}.
type ImportForm struct {
	Files        []*multipart.FileHeader `form:"files[]" validate:"required,min=1,dive,required"`
	AcademicYear string                  `form:"academicYear" validate:"omitempty,max=16"`
	DryRun       bool                    `form:"dryRun"`
}

// ImportJobResponse is returned after an import has been queued.
type ImportJobResponse struct {
	ID        string                `json:"id"`
	Variant   string                `json:"variant"`
	Files     []string              `json:"files"`
	Progress  models.ImportProgress `json:"progress"`
	StatusURL string                `json:"statusUrl"`
}

// VariantColumn describes one column of an import layout.
type VariantColumn struct {
	Field  string `json:"field"`
	Letter string `json:"letter"`
	Header string `json:"header"`
}

// VariantInfo describes a supported spreadsheet layout.
type VariantInfo struct {
	Name           string          `json:"name"`
	Title          string          `json:"title"`
	Kind           string          `json:"kind"`
	MobilityType   string          `json:"mobilityType,omitempty"`
	StartRow       int             `json:"startRow"`
	SectionFromRow bool            `json:"sectionFromRow"`
	Columns        []VariantColumn `json:"columns"`
}

// TemplateQuery pre-fills generated templates.
type TemplateQuery struct {
	Institution  string `form:"institution" validate:"omitempty,max=120"`
	LevelCode    string `form:"levelCode" validate:"omitempty,max=16"`
	Section      string `form:"section" validate:"omitempty,max=60"`
	AcademicYear string `form:"academicYear" validate:"omitempty,max=16"`
}
