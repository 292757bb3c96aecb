package models

import "slices"

// Containment describes the plastic barrier setup isolating a chamber.
type Containment struct {
	Enabled            bool     `firestore:"enabled" json:"enabled"`
	SquareFootage      float64  `firestore:"squareFootage,omitempty" json:"squareFootage,omitempty"`
	PoleCount          int      `firestore:"poleCount,omitempty" json:"poleCount,omitempty"`
	SpaceReductionCuFt float64  `firestore:"spaceReductionCuFt,omitempty" json:"spaceReductionCuFt,omitempty"`
	PhotoURLs          []string `firestore:"photoUrls,omitempty" json:"photoUrls,omitempty"`
}

// DryingChamber groups rooms that share one airflow and dehumidification zone.
type DryingChamber struct {
	ID              string      `firestore:"id" json:"id"`
	Name            string      `firestore:"name" json:"name"`
	Floor           string      `firestore:"floor,omitempty" json:"floor,omitempty"`
	RoomIDs         []string    `firestore:"roomIds" json:"roomIds"`
	Containment     Containment `firestore:"containment" json:"containment"`
	TotalVolumeCuFt float64     `firestore:"totalVolumeCuFt" json:"totalVolumeCuFt"`
}

// HasRoom reports whether roomID is assigned to the chamber.
func (c DryingChamber) HasRoom(roomID string) bool {
	for _, id := range c.RoomIDs {
		if id == roomID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with c.
func (c DryingChamber) Clone() DryingChamber {
	out := c
	out.RoomIDs = slices.Clone(c.RoomIDs)
	out.Containment.PhotoURLs = slices.Clone(c.Containment.PhotoURLs)
	return out
}
