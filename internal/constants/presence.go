package constants

// Presence states reported by the monitor.
const (
	StatePresent = "present"
	StateAbsent  = "absent"
)
