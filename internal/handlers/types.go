package handlers

type ScanRequest struct {
	Target  string   `json:"target" binding:"required"`
	Modules []string `json:"modules"`
	Timeout int      `json:"timeout"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
