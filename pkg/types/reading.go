package types

import "github.com/samber/lo"

// Reading is the ingest payload sent by bedside agents, over HTTP as the
// POST /ingest body and over MQTT as the message payload. A null vital
// decodes as a nil pointer and is treated as absent.
type Reading struct {
	PatientID string              `json:"patient_id"`
	Vitals    map[string]*float64 `json:"vitals"`
}

// NewReading builds a Reading from plain values.
func NewReading(patientID string, v Vitals) Reading {
	return Reading{
		PatientID: patientID,
		Vitals:    lo.MapValues(v, func(x float64, _ string) *float64 { return &x }),
	}
}

// Values returns the non-null vitals.
func (r Reading) Values() Vitals {
	present := lo.PickBy(r.Vitals, func(_ string, v *float64) bool { return v != nil })
	return Vitals(lo.MapValues(present, func(v *float64, _ string) float64 { return *v }))
}
