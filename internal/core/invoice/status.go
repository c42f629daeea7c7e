package invoice

// Status is the lifecycle state of an invoice.
type Status string

const (
	// StatusDraft is the initial state; no number reserved yet.
	StatusDraft Status = "draft"
	// StatusValidated means required fields are present, totals are computed
	// and a sequential number has been reserved.
	StatusValidated Status = "validated"
	// StatusSigned means an XML signature was attached and its digest verified.
	StatusSigned Status = "signed"
	// StatusTransmitted means SEFAZ returned any response, even an error body.
	StatusTransmitted Status = "transmitted"
	// StatusAuthorized means SEFAZ authorized the document (cStat 100).
	StatusAuthorized Status = "authorized"
	// StatusRejected means SEFAZ refused the document. Correctable rejections
	// keep the number for reuse; terminal ones burn it.
	StatusRejected Status = "rejected"
	// StatusDenied means the emitter is irregular; the number is burned.
	StatusDenied Status = "denied"
	// StatusCancelled means event 110111 was homologated.
	StatusCancelled Status = "cancelled"
	// StatusCorrected means at least one CC-e (event 110110) was homologated.
	// Non-terminal: further correction letters and cancellation remain allowed.
	StatusCorrected Status = "corrected"
	// StatusInutilized marks a number formally burned through the
	// inutilization service. Stored on the inutilization record, not on an
	// invoice row, but kept here so the status set is closed.
	StatusInutilized Status = "inutilized"
)

// transitions encodes the legal state machine. A retry after transport
// failure re-enters from signed, which is why transmitted also accepts
// signed as a predecessor through re-signing with the same number.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusValidated},
	StatusValidated:   {StatusSigned},
	StatusSigned:      {StatusTransmitted},
	StatusTransmitted: {StatusAuthorized, StatusRejected, StatusDenied},
	StatusAuthorized:  {StatusCancelled, StatusCorrected},
	StatusCorrected:   {StatusCancelled, StatusCorrected},
	// A correctable rejection is rebuilt with the same number and resubmitted.
	StatusRejected: {StatusValidated},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle. A rejected invoice
// is only effectively terminal when its rejection code burns the number.
func (s Status) Terminal() bool {
	switch s {
	case StatusDenied, StatusCancelled, StatusInutilized:
		return true
	default:
		return false
	}
}

// Authorized reports whether the invoice holds a valid authorization,
// which is the precondition for cancellation and correction events.
func (s Status) Authorized() bool {
	return s == StatusAuthorized || s == StatusCorrected
}

// deniedCodes are the consult/authorize cStat values that denote denial.
var deniedCodes = map[string]bool{
	"110": true, "205": true, "301": true, "302": true, "303": true,
}

// Denied reports whether a SEFAZ status code denotes a denied document.
func Denied(code string) bool { return deniedCodes[code] }

// terminalRejections are rejection codes after which the reserved number
// cannot be reused: the document already exists, was cancelled, or the
// number range was inutilized. Every other rejection is correctable and the
// number is retained for a rebuilt resubmission.
var terminalRejections = map[string]bool{
	"204": true, // duplicidade de NF-e
	"206": true, // NF-e já está inutilizada na base de dados da SEFAZ
	"218": true, // NF-e já está cancelada na base de dados da SEFAZ
	"613": true, // chave de acesso difere da existente em BD
}

// CorrectableRejection reports whether a rejection code permits rebuilding
// the document with the same number.
func CorrectableRejection(code string) bool { return !terminalRejections[code] }
