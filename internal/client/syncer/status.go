package syncer

import "time"

// Phase is the coarse sync state shown to operators.
type Phase string

const (
	PhaseLocal     Phase = "local"
	PhaseOffline   Phase = "offline"
	PhaseSyncing   Phase = "syncing"
	PhasePending   Phase = "pending"
	PhaseConnected Phase = "connected"
)

// Status is a point-in-time view of the engine.
type Status struct {
	Online           bool      `json:"online"`
	RemoteConfigured bool      `json:"remoteConfigured"`
	QueueSize        int       `json:"queueSize"`
	Syncing          bool      `json:"syncing"`
	AutoSync         bool      `json:"autoSync"`
	LastAttempt      time.Time `json:"lastAttempt"`
	AuthRequired     bool      `json:"authRequired"`
	Degraded         bool      `json:"degraded"`
	DegradedReason   string    `json:"degradedReason,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
	Phase            Phase     `json:"phase"`
}

// phaseOf derives the phase from the flags, first match wins.
func phaseOf(s Status) Phase {
	switch {
	case !s.RemoteConfigured:
		return PhaseLocal
	case !s.Online:
		return PhaseOffline
	case s.Syncing:
		return PhaseSyncing
	case s.QueueSize > 0:
		return PhasePending
	default:
		return PhaseConnected
	}
}

// DrainResult summarizes one SyncPendingOperations pass.
type DrainResult struct {
	Attempted    int `json:"attempted"`
	Succeeded    int `json:"succeeded"`
	AuthDeferred int `json:"authDeferred"`
	Failed       int `json:"failed"`
	Dropped      int `json:"dropped"`
}
