package models

// RoomStatus records how a room was affected by the water loss.
type RoomStatus string

const (
	RoomAffected   RoomStatus = "affected"
	RoomUnaffected RoomStatus = "unaffected"
	RoomPartial    RoomStatus = "partial"
)

// Room is a space assessed during the job. Insets and offsets are cubic feet
// added to or removed from the box volume (closets, stair wells, cabinets).
type Room struct {
	ID          string     `firestore:"id" json:"id"`
	Name        string     `firestore:"name" json:"name"`
	Floor       string     `firestore:"floor,omitempty" json:"floor,omitempty"`
	Status      RoomStatus `firestore:"status,omitempty" json:"status,omitempty"`
	Length      float64    `firestore:"length" json:"length"`
	Width       float64    `firestore:"width" json:"width"`
	Height      float64    `firestore:"height" json:"height"`
	InsetsCuFt  float64    `firestore:"insetsCuFt,omitempty" json:"insetsCuFt,omitempty"`
	OffsetsCuFt float64    `firestore:"offsetsCuFt,omitempty" json:"offsetsCuFt,omitempty"`
	// DamageClass is 1 to 3, or 0 when it has not been assessed.
	DamageClass int `firestore:"damageClass,omitempty" json:"damageClass,omitempty"`
}

// IsAffected reports whether the room needs drying. Rooms with no recorded
// status are treated as affected.
func (r Room) IsAffected() bool {
	return r.Status != RoomUnaffected
}

// HasDamageClass reports whether a damage class has been assessed.
func (r Room) HasDamageClass() bool {
	return r.DamageClass != 0
}

// Volume is the room's contribution to a chamber in cubic feet.
func (r Room) Volume() float64 {
	return r.Length*r.Width*r.Height + r.InsetsCuFt - r.OffsetsCuFt
}

// Validate rejects negative measurements and unknown statuses or classes.
func (r Room) Validate() error {
	if r.ID == "" {
		return NewValidationError("id", "room id is required")
	}
	dims := []struct {
		field string
		value float64
	}{
		{"length", r.Length},
		{"width", r.Width},
		{"height", r.Height},
		{"insetsCuFt", r.InsetsCuFt},
		{"offsetsCuFt", r.OffsetsCuFt},
	}
	for _, d := range dims {
		if d.value < 0 {
			return NewValidationError(d.field, "must not be negative, got %v", d.value)
		}
	}
	switch r.Status {
	case "", RoomAffected, RoomUnaffected, RoomPartial:
	default:
		return NewValidationError("status", "unknown room status %q", r.Status)
	}
	if r.DamageClass < 0 || r.DamageClass > 3 {
		return NewValidationError("damageClass", "must be between 1 and 3, got %d", r.DamageClass)
	}
	return nil
}
