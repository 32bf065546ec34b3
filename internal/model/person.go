package model

// Person is a row of the person aggregate table. IDs are assigned by the
// store, dense from 1, and never reused.
type Person struct {
	ID       uint64  `json:"-" gorm:"primaryKey;autoIncrement"`
	Name     string  `json:"name" gorm:"not null"`
	City     *string `json:"city,omitempty"`
	SpouseID *uint64 `json:"spouseId,omitempty" gorm:"column:spouse_id"`
}

func (Person) TableName() string {
	return "person"
}

// PersonMap is the person aggregate as served by GET /persons,
// keyed by decimal person id.
type PersonMap map[uint64]Person
