// Package aggregator is the single-writer command processor. Every
// accepted command runs in one store transaction that bumps the
// revision counter, mutates the person aggregate, reconciles the
// derived location aggregate and appends the matching merge-patch
// events to the outbox tables. Subscribers are notified only after the
// transaction committed.
package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mouton0815/aggregate-event-duality/internal/broker"
	"github.com/mouton0815/aggregate-event-duality/internal/model"
	"github.com/mouton0815/aggregate-event-duality/internal/patch"
)

type Aggregator struct {
	db     *gorm.DB
	broker *broker.Broker
	mu     sync.Mutex
}

func New(db *gorm.DB, b *broker.Broker) *Aggregator {
	return &Aggregator{db: db, broker: b}
}

// CreatePerson inserts a new person and returns it together with the
// consumed revision. A spouse named in the input is coupled symmetrically
// in the same transaction.
func (a *Aggregator) CreatePerson(input model.Person) (model.Person, uint64, error) {
	if input.Name == "" {
		return model.Person{}, 0, validationf("name is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var created model.Person
	var revision uint64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		current, err := readRevision(tx)
		if err != nil {
			return err
		}
		revision = current + 1

		event := patch.PersonEvent{}
		cities := newCitySet()

		var spouse *model.Person
		if input.SpouseID != nil {
			spouse, err = loadPerson(tx, *input.SpouseID)
			if errors.Is(err, ErrNotFound) {
				return validationf("spouse %d does not exist", *input.SpouseID)
			}
			if err != nil {
				return err
			}
			if spouse.SpouseID != nil {
				return errorConflict(spouse.ID)
			}
		}

		person := model.Person{Name: input.Name, City: input.City, SpouseID: input.SpouseID}
		if err := tx.Create(&person).Error; err != nil {
			return err
		}
		if spouse != nil {
			spouse.SpouseID = &person.ID
			if err := tx.Save(spouse).Error; err != nil {
				return err
			}
			event[spouse.ID] = patch.SpouseOnly(patch.Value(person.ID))
			cities.add(spouse.City)
		}
		event[person.ID] = patch.FromPerson(person)
		cities.add(person.City)

		if err := a.finishCommand(tx, revision, event, cities); err != nil {
			return err
		}
		created = person
		return nil
	})
	if err != nil {
		return model.Person{}, 0, err
	}
	a.broker.Notify(revision)
	logrus.WithFields(logrus.Fields{"id": created.ID, "revision": revision}).Info("Created person")
	return created, revision, nil
}

// UpdatePerson applies a merge patch to the person and returns the
// result. Spouse transitions are installed or cleared on the counterpart
// within the same transaction, and the emitted person event then carries
// both ids.
func (a *Aggregator) UpdatePerson(id uint64, pp patch.PersonPatch) (model.Person, uint64, error) {
	if pp.Name.IsNull() {
		return model.Person{}, 0, validationf("name cannot be removed")
	}
	if pp.Name.IsValue() && pp.Name.Value == "" {
		return model.Person{}, 0, validationf("name cannot be empty")
	}
	if pp.SpouseID.IsValue() && pp.SpouseID.Value == id {
		return model.Person{}, 0, validationf("person %d cannot marry itself", id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var updated model.Person
	var revision uint64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		current, err := readRevision(tx)
		if err != nil {
			return err
		}
		revision = current + 1

		before, err := loadPerson(tx, id)
		if err != nil {
			return err
		}

		event := patch.PersonEvent{id: &pp}
		cities := newCitySet()

		switch {
		case pp.SpouseID.IsValue():
			q := pp.SpouseID.Value
			if before.SpouseID != nil && *before.SpouseID != q {
				return errorConflict(id)
			}
			if before.SpouseID == nil {
				spouse, err := loadPerson(tx, q)
				if errors.Is(err, ErrNotFound) {
					return validationf("spouse %d does not exist", q)
				}
				if err != nil {
					return err
				}
				if spouse.SpouseID != nil && *spouse.SpouseID != id {
					return errorConflict(q)
				}
				if spouse.SpouseID == nil {
					spouse.SpouseID = &id
					if err := tx.Save(spouse).Error; err != nil {
						return err
					}
					event[spouse.ID] = patch.SpouseOnly(patch.Value(id))
					cities.add(spouse.City)
				}
			}
		case pp.SpouseID.IsNull():
			if before.SpouseID != nil {
				spouse, err := loadPerson(tx, *before.SpouseID)
				if err != nil {
					return err
				}
				spouse.SpouseID = nil
				if err := tx.Save(spouse).Error; err != nil {
					return err
				}
				event[spouse.ID] = patch.SpouseOnly(patch.Null[uint64]())
				cities.add(spouse.City)
			}
		}

		after := pp.Apply(*before)
		if err := tx.Save(&after).Error; err != nil {
			return err
		}
		cities.add(before.City)
		cities.add(after.City)

		if err := a.finishCommand(tx, revision, event, cities); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if err != nil {
		return model.Person{}, 0, err
	}
	a.broker.Notify(revision)
	logrus.WithFields(logrus.Fields{"id": id, "revision": revision}).Info("Updated person")
	return updated, revision, nil
}

// DeletePerson removes the person. A married person is divorced first:
// the counterpart keeps living but its spouseId is cleared, and the
// person event carries both the deleted id (as null) and the counterpart
// change.
func (a *Aggregator) DeletePerson(id uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var revision uint64
	err := a.db.Transaction(func(tx *gorm.DB) error {
		current, err := readRevision(tx)
		if err != nil {
			return err
		}
		revision = current + 1

		before, err := loadPerson(tx, id)
		if err != nil {
			return err
		}

		event := patch.PersonEvent{id: nil}
		cities := newCitySet()
		cities.add(before.City)

		if before.SpouseID != nil {
			spouse, err := loadPerson(tx, *before.SpouseID)
			if err != nil {
				return err
			}
			spouse.SpouseID = nil
			if err := tx.Save(spouse).Error; err != nil {
				return err
			}
			event[spouse.ID] = patch.SpouseOnly(patch.Null[uint64]())
			cities.add(spouse.City)
		}

		if err := tx.Delete(&model.Person{}, id).Error; err != nil {
			return err
		}

		return a.finishCommand(tx, revision, event, cities)
	})
	if err != nil {
		return 0, err
	}
	a.broker.Notify(revision)
	logrus.WithFields(logrus.Fields{"id": id, "revision": revision}).Info("Deleted person")
	return revision, nil
}

// finishCommand reconciles the location aggregate for all affected
// cities, advances the revision row and appends the outbox events.
func (a *Aggregator) finishCommand(tx *gorm.DB, revision uint64, event patch.PersonEvent, cities citySet) error {
	locEvent, err := reconcileLocations(tx, cities)
	if err != nil {
		return err
	}
	if err := tx.Model(&model.Revision{}).
		Where("id = ?", model.RevisionKey).
		Update("value", revision).Error; err != nil {
		return err
	}
	personPatch, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := tx.Create(&model.PersonEvent{Revision: revision, Patch: datatypes.JSON(personPatch)}).Error; err != nil {
		return err
	}
	if len(locEvent) > 0 {
		locationPatch, err := json.Marshal(locEvent)
		if err != nil {
			return err
		}
		if err := tx.Create(&model.LocationEvent{Revision: revision, Patch: datatypes.JSON(locationPatch)}).Error; err != nil {
			return err
		}
	}
	return nil
}

// reconcileLocations recounts every affected city from the person table
// (post-mutation), diffs the counts against the stored location row and
// applies the insert, update or delete. Cities whose counters did not
// change contribute nothing to the event.
func reconcileLocations(tx *gorm.DB, cities citySet) (patch.LocationEvent, error) {
	event := patch.LocationEvent{}
	for _, city := range cities.values() {
		var total, married int64
		if err := tx.Model(&model.Person{}).Where("city = ?", city).Count(&total).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&model.Person{}).
			Where("city = ? AND spouse_id IS NOT NULL", city).
			Count(&married).Error; err != nil {
			return nil, err
		}

		var before *model.Location
		var row model.Location
		err := tx.First(&row, "city = ?", city).Error
		switch {
		case err == nil:
			before = &row
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, err
		}

		entry, ok := patch.DiffLocation(before, uint64(total), uint64(married))
		if !ok {
			continue
		}
		event[city] = entry

		switch {
		case entry == nil:
			err = tx.Delete(&model.Location{}, "city = ?", city).Error
		case before == nil:
			err = tx.Create(&model.Location{City: city, Total: uint64(total), Married: uint64(married)}).Error
		default:
			err = tx.Model(&model.Location{}).Where("city = ?", city).
				Updates(map[string]any{"total": total, "married": married}).Error
		}
		if err != nil {
			return nil, err
		}
	}
	return event, nil
}

// readRevision returns the current revision value, creating the
// singleton row on first use.
func readRevision(tx *gorm.DB) (uint64, error) {
	var r model.Revision
	if err := tx.Where(model.Revision{ID: model.RevisionKey}).FirstOrCreate(&r).Error; err != nil {
		return 0, err
	}
	return r.Value, nil
}

func loadPerson(tx *gorm.DB, id uint64) (*model.Person, error) {
	var p model.Person
	if err := tx.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func errorConflict(id uint64) error {
	return fmt.Errorf("person %d is already married: %w", id, ErrConflict)
}
