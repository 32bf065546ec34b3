package model

// Location is a row of the derived location aggregate table.
// A row exists iff at least one person lives in that city.
type Location struct {
	City    string `json:"-" gorm:"primaryKey"`
	Total   uint64 `json:"total" gorm:"not null"`
	Married uint64 `json:"married" gorm:"not null"`
}

func (Location) TableName() string {
	return "location"
}

// LocationMap is the location aggregate as served by GET /locations.
type LocationMap map[string]Location
