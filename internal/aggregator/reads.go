package aggregator

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mouton0815/aggregate-event-duality/internal/model"
)

// GetPersons returns a snapshot of the person aggregate and the revision
// it was taken at. Every event up to that revision is visible to
// subsequent event reads.
func (a *Aggregator) GetPersons() (model.PersonMap, uint64, error) {
	persons := model.PersonMap{}
	var revision uint64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if revision, err = currentRevision(tx); err != nil {
			return err
		}
		var rows []model.Person
		if err := tx.Find(&rows).Error; err != nil {
			return err
		}
		for _, p := range rows {
			persons[p.ID] = p
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return persons, revision, nil
}

// GetLocations returns a snapshot of the location aggregate and the
// revision it was taken at.
func (a *Aggregator) GetLocations() (model.LocationMap, uint64, error) {
	locations := model.LocationMap{}
	var revision uint64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var err error
		if revision, err = currentRevision(tx); err != nil {
			return err
		}
		var rows []model.Location
		if err := tx.Find(&rows).Error; err != nil {
			return err
		}
		for _, l := range rows {
			locations[l.City] = l
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return locations, revision, nil
}

// PersonEventsSince returns at most limit person events with
// revision >= from, in ascending revision order.
func (a *Aggregator) PersonEventsSince(from uint64, limit int) ([]model.PersonEvent, error) {
	var events []model.PersonEvent
	err := a.db.Where("revision >= ?", from).
		Order("revision ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// LocationEventsSince returns at most limit location events with
// revision >= from, in ascending revision order.
func (a *Aggregator) LocationEventsSince(from uint64, limit int) ([]model.LocationEvent, error) {
	var events []model.LocationEvent
	err := a.db.Where("revision >= ?", from).
		Order("revision ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// CurrentRevision returns the latest committed revision.
func (a *Aggregator) CurrentRevision() (uint64, error) {
	return currentRevision(a.db)
}

// DeleteEventsBelow removes person and location events with a revision
// below cutoff from the outbox. Used by the retention reaper; aggregates
// are never touched.
func (a *Aggregator) DeleteEventsBelow(cutoff uint64) (int64, error) {
	var deleted int64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("revision < ?", cutoff).Delete(&model.PersonEvent{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		res = tx.Where("revision < ?", cutoff).Delete(&model.LocationEvent{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	return deleted, err
}

func currentRevision(db *gorm.DB) (uint64, error) {
	var r model.Revision
	if err := db.First(&r, model.RevisionKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return r.Value, nil
}
