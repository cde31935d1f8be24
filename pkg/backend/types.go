package backend

// DuplicateRequestError is the backend's idempotency signal: the request
// ID was already applied by an earlier attempt. It is success for
// deduplication purposes, not a failure.
const DuplicateRequestError = "Duplicate request"

// User statuses as reported by the backend.
const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// LoginResult is the backend's response to a login exchange.
type LoginResult struct {
	Success     bool   `json:"success"`
	Token       string `json:"token"`
	TokenExpiry int64  `json:"tokenExpiry"`
	Role        string `json:"role"`
	Email       string `json:"email"`
	Message     string `json:"message,omitempty"`
}

// ValidateResult is the backend's response to a token validation call.
// TokenExpiry is epoch milliseconds; zero means the backend did not
// return a new expiry.
type ValidateResult struct {
	Valid       bool  `json:"valid"`
	TokenExpiry int64 `json:"tokenExpiry"`
}

// RefreshResult is the backend's response to a token refresh call.
type RefreshResult struct {
	Success     bool  `json:"success"`
	TokenExpiry int64 `json:"tokenExpiry"`
}

// UploadRequest is the JSON body of a record upload. Volume is set for
// hazardous records, Location for solid ones. Token is merged in by the
// client at call time.
type UploadRequest struct {
	RequestID string `json:"requestId"`
	Token     string `json:"token,omitempty"`
	Package   string `json:"package"`
	WasteType string `json:"wasteType"`
	Date      string `json:"date"`
	Volume    string `json:"volume,omitempty"`
	Location  string `json:"location,omitempty"`
	Waste     string `json:"waste"`
	ImageByte string `json:"imageByte"`
	ImageName string `json:"imageName"`
}

// UploadResult is the backend's response to a record upload.
type UploadResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Duplicate reports whether the backend recognised the request ID from an
// earlier attempt, meaning the record is already durably saved.
func (r *UploadResult) Duplicate() bool {
	return r.Error == DuplicateRequestError
}

// Accepted reports whether the record is durably saved on the backend,
// either by this call or by an earlier attempt with the same request ID.
func (r *UploadResult) Accepted() bool {
	return r.Success || r.Duplicate()
}

// User is a registered user as reported by the backend.
type User struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Role   string `json:"role"`
}
