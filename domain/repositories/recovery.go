package repositories

import "context"

// RecoveryResult is the backend's answer to a last-completed-result probe.
// Transcript and Answer are meaningful only when Ready is true.
type RecoveryResult struct {
	Ready      bool   `json:"ready"`
	Transcript string `json:"transcript,omitempty"`
	Answer     string `json:"response,omitempty"`
}

// ResultPoller asks the status endpoint whether the server finished a
// request whose stream was lost before the answer arrived.
type ResultPoller interface {
	Poll(ctx context.Context, token string) (RecoveryResult, error)
}
