package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

// Field names one value extracted from a data row.
type Field string

const (
	FieldNationalID  Field = "national_id"
	FieldLastName    Field = "last_name"
	FieldFirstName   Field = "first_name"
	FieldGender      Field = "gender"
	FieldDateOfBirth Field = "date_of_birth"
	FieldBirthPlace  Field = "birth_place"
	FieldSection     Field = "section"
	FieldEventDate   Field = "event_date"
	FieldReason      Field = "reason"
	FieldInstitution Field = "institution"
	FieldScore       Field = "score"
	FieldDecision    Field = "decision"
)

// Column binds a field to a worksheet column letter.
type Column struct {
	Field  Field
	Letter string
	Header string
}

// Columns is an ordered column map.
type Columns []Column

// Letter returns the column letter bound to f, or "".
func (c Columns) Letter(f Field) string {
	for _, col := range c {
		if col.Field == f {
			return col.Letter
		}
	}
	return ""
}

// MetadataCells lists the fixed cell addresses of the metadata block. An empty
// address means the variant does not carry that value.
type MetadataCells struct {
	Region       string
	Directorate  string
	LevelCode    string
	Section      string
	Municipality string
	Institution  string
	AcademicYear string
}

// Kind selects the entity a variant reconciles besides the student itself.
type Kind string

const (
	KindRoster   Kind = "roster"
	KindMobility Kind = "mobility"
)

// Variant is the declarative description of one spreadsheet layout.
type Variant struct {
	Name     string
	Title    string
	StartRow int
	Columns  Columns
	Metadata MetadataCells
	Kind     Kind
	// MobilityType is set for KindMobility variants.
	MobilityType models.MobilityType
	// StatusOnImport is applied to every reconciled student; empty keeps the stored status
	// and enrolls new students.
	StatusOnImport models.StudentStatus
}

// SectionFromRow reports whether section names come from a data column instead of C8.
func (v Variant) SectionFromRow() bool {
	return v.Columns.Letter(FieldSection) != ""
}

// Validate checks the layout is internally consistent.
func (v Variant) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variant name is required")
	}
	if v.StartRow < 1 {
		return fmt.Errorf("variant %s: start row must be positive", v.Name)
	}
	for _, required := range requiredFields {
		if v.Columns.Letter(required) == "" {
			return fmt.Errorf("variant %s: column for %s is required", v.Name, required)
		}
	}
	seen := make(map[string]Field, len(v.Columns))
	for _, col := range v.Columns {
		if _, err := spreadsheet.ColumnNumber(col.Letter); err != nil {
			return fmt.Errorf("variant %s: column %q: %w", v.Name, col.Letter, err)
		}
		if other, ok := seen[col.Letter]; ok {
			return fmt.Errorf("variant %s: column %s bound to both %s and %s", v.Name, col.Letter, other, col.Field)
		}
		seen[col.Letter] = col.Field
	}
	if v.Kind == KindMobility && v.MobilityType == "" {
		return fmt.Errorf("variant %s: mobility type is required", v.Name)
	}
	return nil
}

// DataStartRow is the first data row for every shipped layout. Row 10 holds headers.
const DataStartRow = 11

// StandardMetadata is the metadata block shared by all layouts.
var StandardMetadata = MetadataCells{
	Region:       "C5",
	Directorate:  "C6",
	LevelCode:    "C7",
	Section:      "C8",
	Municipality: "G5",
	Institution:  "G6",
	AcademicYear: "G7",
}

func identityColumns() Columns {
	return Columns{
		{Field: FieldNationalID, Letter: "B", Header: "National ID"},
		{Field: FieldLastName, Letter: "C", Header: "Last name"},
		{Field: FieldFirstName, Letter: "D", Header: "First name"},
		{Field: FieldGender, Letter: "E", Header: "Gender"},
	}
}

func withoutSectionCell(m MetadataCells) MetadataCells {
	m.Section = ""
	return m
}

func mobilityVariant(name, title string, t models.MobilityType, status models.StudentStatus, extra ...Column) Variant {
	cols := identityColumns()
	cols = append(cols,
		Column{Field: FieldSection, Letter: "F", Header: "Section"},
		Column{Field: FieldEventDate, Letter: "G", Header: "Date"},
	)
	cols = append(cols, extra...)
	return Variant{
		Name:           name,
		Title:          title,
		StartRow:       DataStartRow,
		Columns:        cols,
		Metadata:       withoutSectionCell(StandardMetadata),
		Kind:           KindMobility,
		MobilityType:   t,
		StatusOnImport: status,
	}
}

var builtinVariants = map[string]Variant{
	"roster": {
		Name:     "roster",
		Title:    "Student roster",
		StartRow: DataStartRow,
		Columns: append(identityColumns(),
			Column{Field: FieldDateOfBirth, Letter: "F", Header: "Date of birth"},
			Column{Field: FieldBirthPlace, Letter: "G", Header: "Place of birth"},
		),
		Metadata: StandardMetadata,
		Kind:     KindRoster,
	},
	"transfer_out": mobilityVariant("transfer_out", "Outgoing transfers", models.MobilityTransferOut, models.StudentStatusTransferredOut,
		Column{Field: FieldInstitution, Letter: "H", Header: "Destination"},
		Column{Field: FieldReason, Letter: "I", Header: "Reason"},
	),
	"transfer_in": mobilityVariant("transfer_in", "Incoming transfers", models.MobilityTransferIn, models.StudentStatusTransferredIn,
		Column{Field: FieldInstitution, Letter: "H", Header: "Origin"},
		Column{Field: FieldReason, Letter: "I", Header: "Reason"},
	),
	"dropout": mobilityVariant("dropout", "Dropouts", models.MobilityDropout, models.StudentStatusDroppedOut,
		Column{Field: FieldReason, Letter: "H", Header: "Reason"},
	),
	"dismissal": mobilityVariant("dismissal", "Dismissals", models.MobilityDismissal, models.StudentStatusDismissed,
		Column{Field: FieldReason, Letter: "H", Header: "Council decision"},
	),
	"reintegration": mobilityVariant("reintegration", "Reintegrations", models.MobilityReintegration, models.StudentStatusReintegrated,
		Column{Field: FieldReason, Letter: "H", Header: "Decision"},
	),
	"council_decision": {
		Name:     "council_decision",
		Title:    "Class council decisions",
		StartRow: DataStartRow,
		Columns: append(identityColumns(),
			Column{Field: FieldScore, Letter: "F", Header: "Average"},
			Column{Field: FieldDecision, Letter: "G", Header: "Decision"},
		),
		Metadata:     StandardMetadata,
		Kind:         KindMobility,
		MobilityType: models.MobilityCouncilDecision,
	},
}

// LookupVariant returns a shipped layout by name.
func LookupVariant(name string) (Variant, error) {
	v, ok := builtinVariants[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// VariantNames lists shipped layouts in alphabetical order.
func VariantNames() []string {
	names := make([]string, 0, len(builtinVariants))
	for name := range builtinVariants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LevelCatalog translates short level codes into display names.
type LevelCatalog map[string]string

// DefaultLevelCatalog covers the secondary school levels used by the templates.
var DefaultLevelCatalog = LevelCatalog{
	"1AC":  "1ère année collège",
	"2AC":  "2ème année collège",
	"3AC":  "3ème année collège",
	"TC":   "Tronc Commun",
	"TCS":  "Tronc Commun Sciences",
	"TCL":  "Tronc Commun Lettres",
	"TCT":  "Tronc Commun Technologique",
	"1BAC": "1ère année Baccalauréat",
	"2BAC": "2ème année Baccalauréat",
}

// Name returns the display name for code, falling back to the raw code.
func (c LevelCatalog) Name(code string) string {
	key := strings.ToUpper(strings.Join(strings.Fields(code), ""))
	if name, ok := c[key]; ok {
		return name
	}
	return strings.TrimSpace(code)
}
