package types

// Known vitals metric names. Readings may carry any subset of them.
const (
	HeartRate = "heart_rate"
	SpO2      = "spo2"
	Glucose   = "glucose"
	Temp      = "temp"
)

// UnknownPatient is the patient ID recorded when the caller supplies none.
const UnknownPatient = "unknown"

// Vitals maps a metric name to its reading. An absent key means no reading
// was taken for that metric.
type Vitals map[string]float64

// Get returns the reading for metric and whether it was present.
func (v Vitals) Get(metric string) (float64, bool) {
	x, ok := v[metric]
	return x, ok
}

// Clone returns a copy of v that shares no storage with it.
func (v Vitals) Clone() Vitals {
	if v == nil {
		return Vitals{}
	}
	out := make(Vitals, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Content is the clinical content of a record: everything the integrity hash
// covers. It deliberately has no ID, so the hash is independent of where the
// record ends up in storage.
type Content struct {
	Timestamp float64 `json:"timestamp"` // seconds since epoch
	PatientID string  `json:"patient_id"`
	Vitals    Vitals  `json:"vitals"`
	AIResult  string  `json:"ai_result"`
}

// Clone returns a deep copy of c.
func (c Content) Clone() Content {
	c.Vitals = c.Vitals.Clone()
	return c
}

// Record is one stored reading.
type Record struct {
	ID int64 `json:"id"`
	Content
	Hash        string `json:"hash"`
	HashVersion int    `json:"hash_version,omitempty"`
}
