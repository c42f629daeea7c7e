package health

import "time"

// Check is the probed state of one dependency.
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Status captures the state of the service at a moment in time. Checks maps
// dependency names (database, credential, authorizer) to their probed state.
type Status struct {
	Service     string           `json:"service"`
	Version     string           `json:"version"`
	Environment string           `json:"environment"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	Uptime      string           `json:"uptime"`
	UptimeSecs  int64            `json:"uptimeSeconds"`
	Checks      map[string]Check `json:"checks,omitempty"`
}
