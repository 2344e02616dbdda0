package engine

// Reason is a closed, machine-checkable code identifying why an operation
// succeeded or failed. The boundary layer branches on it; free-text causes
// never cross the engine's boundary.
type Reason string

// The complete set of operation reasons.
const (
	ReasonSuccess           Reason = "SUCCESS"
	ReasonAlreadyRegistered Reason = "ALREADY_REGISTERED"
	ReasonNotRegistered     Reason = "NOT_REGISTERED"
	ReasonSoldOut           Reason = "SOLD_OUT"
	ReasonAlreadyInWishlist Reason = "ALREADY_IN_WISHLIST"
	ReasonNotInWishlist     Reason = "NOT_IN_WISHLIST"
	ReasonNotFound          Reason = "NOT_FOUND"
	ReasonUnauthorized      Reason = "UNAUTHORIZED"
	ReasonForbidden         Reason = "FORBIDDEN"
	ReasonStoreFailure      Reason = "STORE_FAILURE"
)

// Outcome is the result value returned by every engine operation.
type Outcome struct {
	OK     bool   `json:"ok"`
	Reason Reason `json:"reason"`

	// cause carries the underlying store error for StoreFailure outcomes.
	// It is diagnostic only: callers must branch on Reason, not on it.
	cause error
}

// Succeeded is the successful outcome.
func Succeeded() Outcome {
	return Outcome{OK: true, Reason: ReasonSuccess}
}

// Failed builds a definitive non-success outcome.
func Failed(r Reason) Outcome {
	return Outcome{OK: false, Reason: r}
}

// StoreFailed wraps an infrastructure error as a StoreFailure outcome.
func StoreFailed(err error) Outcome {
	return Outcome{OK: false, Reason: ReasonStoreFailure, cause: err}
}

// Cause returns the underlying error of a StoreFailure outcome, or nil.
func (o Outcome) Cause() error {
	return o.cause
}

// Caller is the verified principal resolved by the API boundary. A zero
// Caller is an unauthenticated request.
type Caller struct {
	ID    string
	Email string
}

// Authenticated reports whether the caller carries a verified identity.
func (c Caller) Authenticated() bool {
	return c.ID != ""
}
