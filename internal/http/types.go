package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// DeidentifyRequest is the request body for POST /api/v1/deidentify.
type DeidentifyRequest struct {
	Text string `json:"text"`
}

// DeidentifyResponse is the response body for POST /api/v1/deidentify.
type DeidentifyResponse struct {
	Text          string         `json:"text"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}
