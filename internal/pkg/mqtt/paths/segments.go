package paths

// Topic segments published by the meter agent.
// Pattern: {root}/{segment}/{meterID}
const (
	// Power carries instantaneous power readings.
	// Payload: { "meterId": "...", "time": "2024-01-01T00:00:00Z", "watts": 540 }
	Power = "power"

	// Online carries the retained online/offline status of the agent.
	// Payload: { "meterId": "...", "online": true/false }
	Online = "online"
)
