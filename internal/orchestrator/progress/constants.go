package progress

// Store defaults
const (
	DefaultMaxEntries  = 500
	DefaultEventBuffer = 100
)
