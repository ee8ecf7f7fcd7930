package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type SeedStatus string

// Seed status constants
const (
	SeedStatusPending    SeedStatus = "pending"
	SeedStatusProcessing SeedStatus = "processing"
	SeedStatusDone       SeedStatus = "done"
	SeedStatusError      SeedStatus = "error"
)

// Seed is a project idea waiting to be expanded. Rows are created by the web
// client; the worker only reads them and updates status and sprouts.
type Seed struct {
	ID        string     `json:"id" gorm:"primaryKey;column:id;type:TEXT" validate:"required"`
	Title     string     `json:"title" gorm:"column:title"`
	Context   *string    `json:"context" gorm:"column:context"`
	Status    SeedStatus `json:"status" gorm:"column:status;index"`
	Sprouts   Sprouts    `json:"sprouts,omitempty" gorm:"column:sprouts;type:jsonb"`
	CreatedAt Timestamp  `json:"created_at" gorm:"column:created_at"`
	IsHidden  bool       `json:"is_hidden" gorm:"column:is_hidden"`
	IsPinned  bool       `json:"is_pinned" gorm:"column:is_pinned"`
}

func (Seed) TableName() string {
	return "seeds"
}

func (s Seed) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}

// Sprouts is the raw JSON produced by expanding a seed.
type Sprouts []byte

func (s Sprouts) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *Sprouts) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	*s = append((*s)[0:0], data...)
	return nil
}

func (s Sprouts) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return string(s), nil
}

func (s *Sprouts) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(Sprouts(nil), v...)
	case string:
		*s = Sprouts(v)
	default:
		return fmt.Errorf("cannot scan %T into sprouts", src)
	}
	return nil
}

// SeedUpdate lists the fields of a partial update. Empty fields are left
// untouched by the store.
type SeedUpdate struct {
	Status  SeedStatus `json:"status,omitempty"`
	Sprouts Sprouts    `json:"sprouts,omitempty"`
}

// Fields returns the update as a column map.
func (u SeedUpdate) Fields() map[string]any {
	fields := map[string]any{}
	if u.Status != "" {
		fields["status"] = string(u.Status)
	}
	if len(u.Sprouts) > 0 {
		fields["sprouts"] = u.Sprouts
	}
	return fields
}
