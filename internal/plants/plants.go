package plants

// ID identifies a plant or a harvest. Its textual form is whatever the
// backing store uses for its native identifiers (an ObjectID in hex, a UUID,
// ...), so it must be treated as opaque.
type ID string

func (id ID) String() string {
	return string(id)
}

// Represents a plant by its name, its variety, a photo and the date it was
// planted. Dates are kept as entered.
type Plant struct {
	Id          ID
	Name        string
	Variety     string
	Photo       string
	DatePlanted string
}

// Represents a harvest by the plant to which it belongs, its identifier, the
// harvested quantity (e.g. "3 tomatoes") and its date.
type Harvest struct {
	Id       ID
	PlantId  ID
	Quantity string
	Date     string
}
