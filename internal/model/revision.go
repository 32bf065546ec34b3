package model

// RevisionKey is the primary key of the singleton revision row.
const RevisionKey = 1

// Revision is the singleton counter labelling every accepted command.
// It only ever increases, by exactly 1 per committed command.
type Revision struct {
	ID    uint32 `gorm:"primaryKey"`
	Value uint64 `gorm:"not null"`
}

func (Revision) TableName() string {
	return "revision"
}
