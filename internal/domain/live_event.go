package domain

type LiveEventType string

const (
	LiveEventConnected  LiveEventType = "connected"
	LiveEventPDFAdded   LiveEventType = "PDF_ADDED"
	LiveEventPDFUpdated LiveEventType = "PDF_UPDATED"
	LiveEventPDFDeleted LiveEventType = "PDF_DELETED"
)

func ParseLiveEventType(raw string) (LiveEventType, bool) {
	switch t := LiveEventType(raw); t {
	case LiveEventConnected, LiveEventPDFAdded, LiveEventPDFUpdated, LiveEventPDFDeleted:
		return t, true
	default:
		return "", false
	}
}

// Mutation reports whether the event changes the document list.
func (t LiveEventType) Mutation() bool {
	switch t {
	case LiveEventPDFAdded, LiveEventPDFUpdated, LiveEventPDFDeleted:
		return true
	default:
		return false
	}
}

type LiveEvent struct {
	Type LiveEventType  `json:"type"`
	Data map[string]any `json:"data"`
}
