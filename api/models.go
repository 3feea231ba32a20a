package api

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK    bool      `json:"ok"`
	Error ErrorKind `json:"error"`
	// Status is the upstream HTTP status for relay failures.
	Status int `json:"status,omitempty"`
	// Upstream is the truncated upstream body for relay failures.
	Upstream any `json:"upstream,omitempty"`
	// Detail describes a transport failure.
	Detail string `json:"detail,omitempty"`
}

// OKResponse is the body of a successful request with nothing else to say.
type OKResponse struct {
	OK bool `json:"ok"`
}

// AuthRequest is the body of POST /auth.
type AuthRequest struct {
	Passcode any `json:"passcode"`
}

// AuthStatusResponse is the body of GET /auth/status.
type AuthStatusResponse struct {
	OK            bool   `json:"ok"`
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// RelayResponse is the body of a successful submission.
type RelayResponse struct {
	OK       bool `json:"ok"`
	Upstream any  `json:"upstream"`
}

// ListSubmissionsResponse is the body of GET /submissions.
type ListSubmissionsResponse struct {
	OK      bool          `json:"ok"`
	Entries []LedgerEntry `json:"entries"`
	PaginationMeta
}
