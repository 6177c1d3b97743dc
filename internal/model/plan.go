package model

// Plan mirrors the `plans` table.  Plans are maintained by platform
// administration; the access core only reads them.
type Plan struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	DisplayName       string `json:"display_name"`
	MaxVehicles       int    `json:"max_vehicles"`
	MaxOperators      int    `json:"max_operators"`
	MaxTripsPerPeriod int    `json:"max_trips_per_period"`
}
