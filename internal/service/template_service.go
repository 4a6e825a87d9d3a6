package service

import (
	"fmt"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/export"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// XLSXContentType is the media type of generated workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TemplateOptions pre-fills the metadata block of a blank workbook.
type TemplateOptions struct {
	Institution  string
	LevelCode    string
	Section      string
	AcademicYear string
}

// TemplateService produces blank workbooks whose layout the importer accepts unchanged.
type TemplateService struct {
	render func(export.Template) ([]byte, error)
}

// NewTemplateService constructs the service.
func NewTemplateService() *TemplateService {
	return &TemplateService{render: export.RenderTemplate}
}

// Build returns the template description for a variant.
func (s *TemplateService) Build(variantName string, opts TemplateOptions) (export.Template, error) {
	variant, err := importer.LookupVariant(variantName)
	if err != nil {
		return export.Template{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown import variant %q", variantName))
	}

	md := variant.Metadata
	t := export.Template{
		Title:     variant.Title,
		HeaderRow: variant.StartRow - 1,
	}
	t.Metadata = appendLabelled(t.Metadata, md.Region, "Region", "")
	t.Metadata = appendLabelled(t.Metadata, md.Directorate, "Directorate", "")
	t.Metadata = appendLabelled(t.Metadata, md.LevelCode, "Level", opts.LevelCode)
	t.Metadata = appendLabelled(t.Metadata, md.Section, "Section", opts.Section)
	t.Metadata = appendLabelled(t.Metadata, md.Municipality, "Municipality", "")
	t.Metadata = appendLabelled(t.Metadata, md.Institution, "Institution", opts.Institution)
	year := importer.NormalizeAcademicYear(opts.AcademicYear)
	t.Metadata = appendLabelled(t.Metadata, md.AcademicYear, "Academic year", year)

	for _, col := range variant.Columns {
		t.Columns = append(t.Columns, export.TemplateColumn{Letter: col.Letter, Title: col.Header})
	}
	return t, nil
}

// Render builds and writes the workbook, returning a download file name with it.
func (s *TemplateService) Render(variantName string, opts TemplateOptions) (string, []byte, error) {
	t, err := s.Build(variantName, opts)
	if err != nil {
		return "", nil, err
	}
	data, err := s.render(t)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate template")
	}
	variant, _ := importer.LookupVariant(variantName)
	return fmt.Sprintf("template_%s.xlsx", variant.Name), data, nil
}

// appendLabelled puts the label one column left of the value cell.
func appendLabelled(cells []export.TemplateCell, valueRef, label, value string) []export.TemplateCell {
	if valueRef == "" {
		return cells
	}
	col, row, err := spreadsheet.ParseCellName(valueRef)
	if err != nil || col < 2 {
		return cells
	}
	return append(cells, export.TemplateCell{
		LabelRef: spreadsheet.CellName(col-1, row),
		Label:    label,
		ValueRef: valueRef,
		Value:    value,
	})
}
