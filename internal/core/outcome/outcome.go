package outcome

import "time"

// Kind identifies the final interpretation of a SEFAZ exchange.
type Kind string

const (
	// KindAuthorized means SEFAZ authorized the document (cStat 100).
	KindAuthorized Kind = "authorized"
	// KindRejected means SEFAZ interpreted the document and refused it.
	KindRejected Kind = "rejected"
	// KindDenied means the emitter is irregular and the number is burned.
	KindDenied Kind = "denied"
	// KindCancelled means the document cancellation is homologated (cStat 101).
	KindCancelled Kind = "cancelled"
	// KindEventAccepted means a fiscal event was registered (cStat 135/136) or
	// an inutilization was homologated (cStat 102).
	KindEventAccepted Kind = "event_accepted"
	// KindServiceUp means the status service reported normal operation (cStat 107).
	KindServiceUp Kind = "service_up"
	// KindServiceDown means SEFAZ reported the service as paused or unavailable.
	KindServiceDown Kind = "service_down"
	// KindUnparseable means a reply was received but matched no known shape.
	KindUnparseable Kind = "unparseable"
)

// Result is the typed outcome of a fiscal operation. Every result, including a
// success, carries the authority's own code and motive plus the raw XML of the
// exchange so callers can display it verbatim.
type Result struct {
	Kind       Kind       `json:"kind"`
	Code       string     `json:"code"`
	Motive     string     `json:"motive"`
	Protocol   string     `json:"protocol,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	AccessKey  string     `json:"accessKey,omitempty"`
	RequestXML []byte     `json:"requestXml,omitempty"`
	RawXML     []byte     `json:"rawXml,omitempty"`
}

// Terminal reports whether the outcome ends the document's lifecycle.
// Rejections are only terminal when the rejection code burns the number;
// that classification lives with the invoice state machine.
func (r *Result) Terminal() bool {
	switch r.Kind {
	case KindDenied, KindCancelled:
		return true
	default:
		return false
	}
}
