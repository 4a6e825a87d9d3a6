package service

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/sma-roster-sync/internal/importer"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

func TestTemplateServiceBuild(t *testing.T) {
	svc := NewTemplateService()

	tpl, err := svc.Build("dropout", TemplateOptions{LevelCode: "TC", AcademicYear: "2025-2026"})
	require.NoError(t, err)
	assert.Equal(t, "Dropouts", tpl.Title)
	assert.Equal(t, 10, tpl.HeaderRow)

	refs := map[string]string{}
	for _, cell := range tpl.Metadata {
		refs[cell.LabelRef] = cell.ValueRef
	}
	assert.Equal(t, "C7", refs["B7"])
	assert.Equal(t, "G7", refs["F7"])
	_, hasSection := refs["B8"]
	assert.False(t, hasSection, "dropout sections come from the rows")

	require.Len(t, tpl.Columns, 7)
	assert.Equal(t, "B", tpl.Columns[0].Letter)
	assert.Equal(t, "Reason", tpl.Columns[6].Title)

	_, err = svc.Build("grades", TemplateOptions{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTemplateServiceRenderIsImportable(t *testing.T) {
	svc := NewTemplateService()
	name, data, err := svc.Render("ROSTER", TemplateOptions{LevelCode: "TCS", Section: "Sciences 1", AcademicYear: "2025/2026", Institution: "Lycée Ibn Sina"})
	require.NoError(t, err)
	assert.Equal(t, "template_roster.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	header, err := f.GetCellValue("Sheet1", "B10")
	require.NoError(t, err)
	assert.Equal(t, "National ID", header)
	require.NoError(t, f.SetCellValue("Sheet1", "B11", "J1"))
	require.NoError(t, f.SetCellValue("Sheet1", "C11", "Alaoui"))
	require.NoError(t, f.SetCellValue("Sheet1", "D11", "Sara"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	wb, err := spreadsheet.Open(name, buf.Bytes())
	require.NoError(t, err)
	require.NotEmpty(t, wb.Sheets)

	variant, err := importer.LookupVariant("roster")
	require.NoError(t, err)
	md := importer.ReadMetadata(wb.Sheets[0], variant.Metadata, nil)
	assert.Equal(t, "TCS", md.LevelCode)
	assert.Equal(t, "Sciences 1", md.Section)
	assert.Equal(t, "2025/2026", md.AcademicYear)
	assert.Equal(t, "Lycée Ibn Sina", md.Institution)

	scanner, err := importer.NewScanner(wb.Sheets[0], variant.StartRow, variant.Columns)
	require.NoError(t, err)
	require.True(t, scanner.Next())
	row := scanner.Row()
	assert.Nil(t, row.Err)
	assert.Equal(t, "J1", row.Get(importer.FieldNationalID))
	assert.False(t, scanner.Next())
}
