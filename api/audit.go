// Package api defines public API contracts for shm-arbiter.
package api

// Audit records registry mutations and rejected requests.
type Audit interface {
	LogEvent(event string, details map[string]interface{}) error
}

// NopAudit discards every event.
type NopAudit struct{}

func (NopAudit) LogEvent(event string, details map[string]interface{}) error {
	return nil
}
