package patch

import (
	"encoding/json"

	"github.com/mouton0815/aggregate-event-duality/internal/model"
)

// PersonPatch is the change set of one person as received via PATCH
// requests and as embedded in person events. Serialized patches contain
// only the fields the patch defines, whether or not they differ from the
// stored value; null removes a field.
type PersonPatch struct {
	Name     Field[string]
	City     Field[string]
	SpouseID Field[uint64]
}

// PersonEvent is the body of one person outbox row: a merge patch over
// the person aggregate. It may map several ids when a command touches
// more than one person (spouse coupling), and maps an id to null when
// that person was deleted.
type PersonEvent map[uint64]*PersonPatch

// FromPerson builds the insert patch for a newly created person.
// Unset optional attributes stay absent rather than null, so applying
// the patch to the empty object yields exactly the created person.
func FromPerson(p model.Person) *PersonPatch {
	pp := PersonPatch{Name: Value(p.Name)}
	if p.City != nil {
		pp.City = Value(*p.City)
	}
	if p.SpouseID != nil {
		pp.SpouseID = Value(*p.SpouseID)
	}
	return &pp
}

// SpouseOnly builds the counterpart patch of a spouse transition.
func SpouseOnly(f Field[uint64]) *PersonPatch {
	return &PersonPatch{SpouseID: f}
}

// Apply merges the patch into before per RFC 7396 and returns the
// resulting person. The caller has already rejected name removal.
func (p *PersonPatch) Apply(before model.Person) model.Person {
	after := before
	if p.Name.IsValue() {
		after.Name = p.Name.Value
	}
	if p.City.IsValue() {
		city := p.City.Value
		after.City = &city
	} else if p.City.IsNull() {
		after.City = nil
	}
	if p.SpouseID.IsValue() {
		spouse := p.SpouseID.Value
		after.SpouseID = &spouse
	} else if p.SpouseID.IsNull() {
		after.SpouseID = nil
	}
	return after
}

// IsEmpty reports whether the patch changes nothing.
func (p *PersonPatch) IsEmpty() bool {
	return p.Name.IsAbsent() && p.City.IsAbsent() && p.SpouseID.IsAbsent()
}

func (p *PersonPatch) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name     Field[string] `json:"name"`
		City     Field[string] `json:"city"`
		SpouseID Field[uint64] `json:"spouseId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Name = aux.Name
	p.City = aux.City
	p.SpouseID = aux.SpouseID
	return nil
}

func (p PersonPatch) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, 3)
	if p.Name.Defined {
		obj["name"] = p.Name.value()
	}
	if p.City.Defined {
		obj["city"] = p.City.value()
	}
	if p.SpouseID.Defined {
		obj["spouseId"] = p.SpouseID.value()
	}
	return json.Marshal(obj)
}
