package model

import "time"

// ClassifiedSession is a single access-session that failed authentication or
// sits unauthorized on a switch port. Fields that could not be extracted from
// the device output carry the "Unknown" sentinel instead of being omitted.
type ClassifiedSession struct {
	Status     string `json:"status"`
	Interface  string `json:"interface"`
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
	UserName   string `json:"user_name"`
	Method     string `json:"method"`
	Vendor     string `json:"vendor,omitempty"`
}

// CollectionResult is the outcome of one collection run against one switch.
// MACs preserves the order in which flagged sessions were discovered on the
// device; Sessions is keyed by MAC address in Cisco dotted notation.
type CollectionResult struct {
	RunID        string                        `json:"run_id"`
	Target       string                        `json:"target"`
	StartedAt    time.Time                     `json:"started_at"`
	DurationMs   int64                         `json:"duration_ms"`
	SessionCount string                        `json:"session_count"`
	MACs         []string                      `json:"macs"`
	Sessions     map[string]*ClassifiedSession `json:"sessions"`
}

// Flagged returns the number of distinct flagged sessions in the result.
func (r *CollectionResult) Flagged() int {
	return len(r.Sessions)
}

// Target is a switch an operator can run a collection against.
type Target struct {
	Name string `yaml:"name" json:"name"`
	Host string `yaml:"host" json:"host"`
}
