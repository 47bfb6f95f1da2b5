package types

// Event represents a typed event emitted by a committed ledger mutation.
type Event struct {
	Type       string            `json:"type"`
	At         uint64            `json:"at"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute value for key or an empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
