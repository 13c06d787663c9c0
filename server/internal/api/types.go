package api

// IngestResponse is the payload for a successful POST /ingest.
type IngestResponse struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
	Hash   string `json:"hash"`
}

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Records     int64  `json:"records"`
}

// AlertResponse is one entry in GET /alerts.
type AlertResponse struct {
	ID         string   `json:"id"`
	RecordID   int64    `json:"record_id"`
	PatientID  string   `json:"patient_id"`
	Alerts     []string `json:"alerts"`
	Message    string   `json:"message"`
	FiredAt    string   `json:"fired_at"` // RFC3339
	Suppressed bool     `json:"suppressed"`
}

// statusResponse is the body of a 404 from GET /verify/{id}.
type statusResponse struct {
	Status string `json:"status"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
