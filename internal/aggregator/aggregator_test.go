package aggregator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mouton0815/aggregate-event-duality/internal/broker"
	"github.com/mouton0815/aggregate-event-duality/internal/model"
	"github.com/mouton0815/aggregate-event-duality/internal/patch"
)

func strptr(s string) *string { return &s }
func u64ptr(v uint64) *uint64 { return &v }

func newTestAggregator(t *testing.T) (*Aggregator, *broker.Broker) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Revision{},
		&model.Person{},
		&model.Location{},
		&model.PersonEvent{},
		&model.LocationEvent{},
	))
	b := broker.NewBroker()
	return New(db, b), b
}

func personEventJSON(t *testing.T, agg *Aggregator, revision uint64) string {
	t.Helper()
	events, err := agg.PersonEventsSince(revision, 1)
	require.NoError(t, err)
	require.NotEmpty(t, events, "expected a person event at revision %d", revision)
	require.Equal(t, revision, events[0].Revision)
	return string(events[0].Patch)
}

func locationEventJSON(t *testing.T, agg *Aggregator, revision uint64) string {
	t.Helper()
	events, err := agg.LocationEventsSince(revision, 1)
	require.NoError(t, err)
	require.NotEmpty(t, events, "expected a location event at revision %d", revision)
	require.Equal(t, revision, events[0].Revision)
	return string(events[0].Patch)
}

func personsJSON(t *testing.T, agg *Aggregator) (string, uint64) {
	t.Helper()
	persons, revision, err := agg.GetPersons()
	require.NoError(t, err)
	b, err := json.Marshal(persons)
	require.NoError(t, err)
	return string(b), revision
}

func locationsJSON(t *testing.T, agg *Aggregator) (string, uint64) {
	t.Helper()
	locations, revision, err := agg.GetLocations()
	require.NoError(t, err)
	b, err := json.Marshal(locations)
	require.NoError(t, err)
	return string(b), revision
}

// The end-to-end walk through the duality demo: every command changes
// the aggregates and appends the matching merge-patch events.
func TestCommandScenario(t *testing.T) {
	agg, _ := newTestAggregator(t)

	// POST Hans in Berlin
	hans, rev, err := agg.CreatePerson(model.Person{Name: "Hans", City: strptr("Berlin")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
	assert.Equal(t, uint64(1), hans.ID)

	persons, prev := personsJSON(t, agg)
	assert.JSONEq(t, `{"1":{"name":"Hans","city":"Berlin"}}`, persons)
	assert.Equal(t, uint64(1), prev)
	locations, _ := locationsJSON(t, agg)
	assert.JSONEq(t, `{"Berlin":{"total":1,"married":0}}`, locations)
	assert.JSONEq(t, `{"1":{"name":"Hans","city":"Berlin"}}`, personEventJSON(t, agg, 1))
	assert.JSONEq(t, `{"Berlin":{"total":1,"married":0}}`, locationEventJSON(t, agg, 1))

	// POST Inge without a city: no location event for this revision
	inge, rev, err := agg.CreatePerson(model.Person{Name: "Inge"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)
	assert.Equal(t, uint64(2), inge.ID)
	assert.JSONEq(t, `{"2":{"name":"Inge"}}`, personEventJSON(t, agg, 2))
	locEvents, err := agg.LocationEventsSince(2, 10)
	require.NoError(t, err)
	assert.Empty(t, locEvents)

	// PATCH Inge moves to Berlin
	_, rev, err = agg.UpdatePerson(2, patch.PersonPatch{City: patch.Value("Berlin")})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rev)
	assert.JSONEq(t, `{"2":{"city":"Berlin"}}`, personEventJSON(t, agg, 3))
	assert.JSONEq(t, `{"Berlin":{"total":2}}`, locationEventJSON(t, agg, 3))

	// PATCH Hans marries Inge: both sides coupled in one command
	_, rev, err = agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(2))})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rev)
	assert.JSONEq(t, `{"1":{"spouseId":2},"2":{"spouseId":1}}`, personEventJSON(t, agg, 4))
	assert.JSONEq(t, `{"Berlin":{"married":2}}`, locationEventJSON(t, agg, 4))

	// DELETE Hans: Inge is divorced in the same command
	rev, err = agg.DeletePerson(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rev)
	assert.JSONEq(t, `{"1":null,"2":{"spouseId":null}}`, personEventJSON(t, agg, 5))
	assert.JSONEq(t, `{"Berlin":{"total":1,"married":0}}`, locationEventJSON(t, agg, 5))

	persons, prev = personsJSON(t, agg)
	assert.JSONEq(t, `{"2":{"name":"Inge","city":"Berlin"}}`, persons)
	assert.Equal(t, uint64(5), prev)
	locations, lrev := locationsJSON(t, agg)
	assert.JSONEq(t, `{"Berlin":{"total":1,"married":0}}`, locations)
	assert.Equal(t, uint64(5), lrev)
}

func TestCityChangeMovesCounters(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans", City: strptr("Berlin")})
	require.NoError(t, err)
	_, _, err = agg.CreatePerson(model.Person{Name: "Inge", City: strptr("Berlin")})
	require.NoError(t, err)

	// Inge moves: Berlin shrinks, Munich appears
	_, rev, err := agg.UpdatePerson(2, patch.PersonPatch{City: patch.Value("Munich")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Berlin":{"total":1},"Munich":{"total":1,"married":0}}`, locationEventJSON(t, agg, rev))

	// Hans leaves Berlin entirely: the city vanishes
	_, rev, err = agg.UpdatePerson(1, patch.PersonPatch{City: patch.Null[string]()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Berlin":null}`, locationEventJSON(t, agg, rev))

	locations, _ := locationsJSON(t, agg)
	assert.JSONEq(t, `{"Munich":{"total":1,"married":0}}`, locations)
}

func TestCrossCityMarriage(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans", City: strptr("Berlin")})
	require.NoError(t, err)
	_, _, err = agg.CreatePerson(model.Person{Name: "Inge", City: strptr("Munich")})
	require.NoError(t, err)

	// Marrying across cities bumps the married counter of both
	_, rev, err := agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(2))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Berlin":{"married":1},"Munich":{"married":1}}`, locationEventJSON(t, agg, rev))

	locations, _ := locationsJSON(t, agg)
	assert.JSONEq(t, `{"Berlin":{"total":1,"married":1},"Munich":{"total":1,"married":1}}`, locations)
}

func TestCreateWithSpouse(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans", City: strptr("Berlin")})
	require.NoError(t, err)

	inge, rev, err := agg.CreatePerson(model.Person{Name: "Inge", City: strptr("Berlin"), SpouseID: u64ptr(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), inge.ID)
	assert.JSONEq(t, `{"1":{"spouseId":2},"2":{"name":"Inge","city":"Berlin","spouseId":1}}`, personEventJSON(t, agg, rev))
	assert.JSONEq(t, `{"Berlin":{"total":2,"married":2}}`, locationEventJSON(t, agg, rev))
}

func TestRenameEmitsNoLocationEvent(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans", City: strptr("Berlin")})
	require.NoError(t, err)

	_, rev, err := agg.UpdatePerson(1, patch.PersonPatch{Name: patch.Value("Johann")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"name":"Johann"}}`, personEventJSON(t, agg, rev))
	locEvents, err := agg.LocationEventsSince(rev, 10)
	require.NoError(t, err)
	assert.Empty(t, locEvents)
}

func TestValidationConsumesNoRevision(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: ""})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, _, err = agg.CreatePerson(model.Person{Name: "Hans", SpouseID: u64ptr(99)})
	require.ErrorAs(t, err, &verr)

	revision, err := agg.CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), revision)

	events, err := agg.PersonEventsSince(1, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdateValidation(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans"})
	require.NoError(t, err)

	var verr *ValidationError

	_, _, err = agg.UpdatePerson(1, patch.PersonPatch{Name: patch.Null[string]()})
	assert.ErrorAs(t, err, &verr, "name cannot be removed")

	_, _, err = agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(1))})
	assert.ErrorAs(t, err, &verr, "self marriage")

	_, _, err = agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(42))})
	assert.ErrorAs(t, err, &verr, "dangling spouse")

	_, _, err = agg.UpdatePerson(7, patch.PersonPatch{Name: patch.Value("Johann")})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteUnknownPerson(t *testing.T) {
	agg, _ := newTestAggregator(t)
	_, err := agg.DeletePerson(1)
	assert.True(t, errors.Is(err, ErrNotFound))

	revision, err := agg.CurrentRevision()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), revision)
}

func TestSpouseConflict(t *testing.T) {
	agg, _ := newTestAggregator(t)

	for _, name := range []string{"Hans", "Inge", "Karl"} {
		_, _, err := agg.CreatePerson(model.Person{Name: name})
		require.NoError(t, err)
	}
	_, _, err := agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(2))})
	require.NoError(t, err)

	// Karl cannot marry Inge, she is taken
	_, _, err = agg.UpdatePerson(3, patch.PersonPatch{SpouseID: patch.Value(uint64(2))})
	assert.True(t, errors.Is(err, ErrConflict))

	// Hans cannot re-marry without divorcing first
	_, _, err = agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(3))})
	assert.True(t, errors.Is(err, ErrConflict))

	// Re-stating the existing marriage is fine and idempotent
	_, rev, err := agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Value(uint64(2))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"spouseId":2}}`, personEventJSON(t, agg, rev))
}

func TestDivorceClearsBothSides(t *testing.T) {
	agg, _ := newTestAggregator(t)

	_, _, err := agg.CreatePerson(model.Person{Name: "Hans"})
	require.NoError(t, err)
	_, _, err = agg.CreatePerson(model.Person{Name: "Inge", SpouseID: u64ptr(1)})
	require.NoError(t, err)

	_, rev, err := agg.UpdatePerson(1, patch.PersonPatch{SpouseID: patch.Null[uint64]()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":{"spouseId":null},"2":{"spouseId":null}}`, personEventJSON(t, agg, rev))

	persons, _ := personsJSON(t, agg)
	assert.JSONEq(t, `{"1":{"name":"Hans"},"2":{"name":"Inge"}}`, persons)
}

func TestNotifyAfterCommitOnly(t *testing.T) {
	agg, b := newTestAggregator(t)
	sub := b.Subscribe(1)
	defer b.Unsubscribe(sub)

	_, _, err := agg.CreatePerson(model.Person{Name: ""})
	require.Error(t, err)
	select {
	case <-sub.Wake():
		t.Fatal("failed command must not notify")
	default:
	}

	_, _, err = agg.CreatePerson(model.Person{Name: "Hans"})
	require.NoError(t, err)
	select {
	case <-sub.Wake():
	default:
		t.Fatal("committed command must notify")
	}
}

func TestReapedEventsLeaveAggregatesIntact(t *testing.T) {
	agg, _ := newTestAggregator(t)

	for _, name := range []string{"A", "B", "C", "D"} {
		_, _, err := agg.CreatePerson(model.Person{Name: name, City: strptr("Berlin")})
		require.NoError(t, err)
	}
	deleted, err := agg.DeleteEventsBelow(3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted) // person events 1,2 + location events 1,2

	events, err := agg.PersonEventsSince(1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(3), events[0].Revision)

	persons, revision, err := agg.GetPersons()
	require.NoError(t, err)
	assert.Len(t, persons, 4)
	assert.Equal(t, uint64(4), revision)
}
