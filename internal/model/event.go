package model

import "gorm.io/datatypes"

// PersonEvent is an outbox row carrying the JSON merge patch of one
// committed command against the person aggregate. Rows are appended in
// the same transaction as the aggregate change and never modified.
type PersonEvent struct {
	Revision uint64         `gorm:"primaryKey"`
	Patch    datatypes.JSON `gorm:"not null"`
}

func (PersonEvent) TableName() string {
	return "person_event"
}

// LocationEvent is the location counterpart of PersonEvent. The revision
// numbering is shared with person events, so the sequence is sparse here:
// commands that touch no city field append no location row.
type LocationEvent struct {
	Revision uint64         `gorm:"primaryKey"`
	Patch    datatypes.JSON `gorm:"not null"`
}

func (LocationEvent) TableName() string {
	return "location_event"
}
