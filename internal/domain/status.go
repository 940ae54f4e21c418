package domain

// Normalized project states shown on the dashboard.
const (
	StateCreated  = "created"
	StateBuilding = "building"
	StateDeployed = "deployed"
	StateError    = "error"
)

// Vercel deployment ready states, as reported by the deployments API.
const (
	BuildStateQueued       = "QUEUED"
	BuildStateBuilding     = "BUILDING"
	BuildStateInitializing = "INITIALIZING"
	BuildStateReady        = "READY"
	BuildStateError        = "ERROR"
	BuildStateCanceled     = "CANCELED"
)

// ProjectStatus is the normalized status derived from the cached project,
// its latest relevant job and the polled deployment state. It is never
// persisted; it is recomputed from source data on every snapshot.
type ProjectStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}
