package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MobilityType enumerates student movement and council events.
type MobilityType string

const (
	MobilityTransferOut     MobilityType = "TRANSFER_OUT"
	MobilityTransferIn      MobilityType = "TRANSFER_IN"
	MobilityDropout         MobilityType = "DROPOUT"
	MobilityDismissal       MobilityType = "DISMISSAL"
	MobilityReintegration   MobilityType = "REINTEGRATION"
	MobilityCouncilDecision MobilityType = "COUNCIL_DECISION"
)

// MobilityRecord stores one movement event. At most one record of a given type
// exists per student and academic year.
type MobilityRecord struct {
	ID          string              `db:"id" json:"id"`
	StudentID   string              `db:"student_id" json:"student_id"`
	Type        MobilityType        `db:"type" json:"type"`
	EventDate   string              `db:"event_date" json:"event_date"`
	Reason      string              `db:"reason" json:"reason"`
	Institution string              `db:"institution" json:"institution"`
	Score       decimal.NullDecimal `db:"score" json:"score"`
	Metadata    MobilityMetadata    `db:"metadata" json:"metadata"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// MobilityMetadata snapshots the student's placement at the time of the event so
// reports do not need to re-join students.
type MobilityMetadata struct {
	AcademicYear string `json:"academic_year"`
	Gender       Gender `json:"gender,omitempty"`
	Level        string `json:"level,omitempty"`
	Section      string `json:"section,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	SourceFile   string `json:"source_file,omitempty"`
}

// Value marshals metadata to JSON for persistence.
func (m MobilityMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal mobility metadata: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB payloads into the metadata struct.
func (m *MobilityMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = MobilityMetadata{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for MobilityMetadata", value)
	}
	if len(data) == 0 {
		*m = MobilityMetadata{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal mobility metadata: %w", err)
	}
	return nil
}
