package event

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Code is the SEFAZ tpEvento of a post-authorization event.
type Code string

const (
	// CodeCorrection is the electronic correction letter (CC-e).
	CodeCorrection Code = "110110"
	// CodeCancellation is the cancellation event.
	CodeCancellation Code = "110111"
)

// Valid reports whether the code is a supported event type.
func (c Code) Valid() bool {
	return c == CodeCorrection || c == CodeCancellation
}

// Description returns the descEvento literal required by the layout.
func (c Code) Description() string {
	switch c {
	case CodeCorrection:
		return "Carta de Correcao"
	case CodeCancellation:
		return "Cancelamento"
	default:
		return ""
	}
}

// Status is the lifecycle of an event request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusRejected   Status = "rejected"
)

const (
	// MaxCorrectionSequence is the SEFAZ limit of correction letters per
	// document.
	MaxCorrectionSequence = 20

	minJustification = 15
	maxJustification = 255
	minCorrection    = 15
	maxCorrection    = 1000
)

// FiscalEvent is one signed event request against an authorized document.
// Body holds the correction text for CC-e or the justification for a
// cancellation; AuthProtocol references the original authorization for
// cancellations and Protocol receives the event protocol once homologated.
type FiscalEvent struct {
	ID           int64
	AccessKey    string
	Code         Code
	Sequence     int
	Timestamp    time.Time
	Body         string
	AuthProtocol string
	Status       Status
	Protocol     string
	RawRequest   []byte
	RawResponse  []byte
	CreatedAt    time.Time
}

// Validate checks the event against the layout rules before any signing or
// network activity. Length limits are counted in runes because SEFAZ counts
// characters, not bytes.
func (e *FiscalEvent) Validate() error {
	if !e.Code.Valid() {
		return fmt.Errorf("invalid event code: %s", e.Code)
	}
	if len(e.AccessKey) != 44 {
		return fmt.Errorf("access key must have 44 digits")
	}
	body := strings.TrimSpace(e.Body)
	n := utf8.RuneCountInString(body)

	switch e.Code {
	case CodeCancellation:
		if e.Sequence != 1 {
			return fmt.Errorf("cancellation sequence must be 1, got %d", e.Sequence)
		}
		if e.AuthProtocol == "" {
			return fmt.Errorf("authorization protocol is required for cancellation")
		}
		if n < minJustification || n > maxJustification {
			return fmt.Errorf("justification must have between %d and %d characters, got %d", minJustification, maxJustification, n)
		}
	case CodeCorrection:
		if e.Sequence < 1 || e.Sequence > MaxCorrectionSequence {
			return fmt.Errorf("correction sequence must be between 1 and %d, got %d", MaxCorrectionSequence, e.Sequence)
		}
		if n < minCorrection || n > maxCorrection {
			return fmt.Errorf("correction text must have between %d and %d characters, got %d", minCorrection, maxCorrection, n)
		}
	}
	return nil
}

// Inutilization formally burns a never-used number range of a series.
type Inutilization struct {
	ID            int64
	EmitterID     int64
	Year          int // two digits
	Model         int // always 55
	Serie         int
	NumberFirst   int64
	NumberLast    int64
	Justification string
	Status        Status
	Protocol      string
	RawRequest    []byte
	RawResponse   []byte
	CreatedAt     time.Time
}

// Validate checks the inutilization request locally.
func (i *Inutilization) Validate() error {
	if i.Year < 0 || i.Year > 99 {
		return fmt.Errorf("year must have two digits, got %d", i.Year)
	}
	if i.Model != 55 {
		return fmt.Errorf("model must be 55, got %d", i.Model)
	}
	if i.Serie < 0 || i.Serie > 999 {
		return fmt.Errorf("serie must be between 0 and 999, got %d", i.Serie)
	}
	if i.NumberFirst <= 0 || i.NumberLast <= 0 {
		return fmt.Errorf("number range must be positive")
	}
	if i.NumberFirst > i.NumberLast {
		return fmt.Errorf("first number %d is greater than last number %d", i.NumberFirst, i.NumberLast)
	}
	n := utf8.RuneCountInString(strings.TrimSpace(i.Justification))
	if n < minJustification || n > maxJustification {
		return fmt.Errorf("justification must have between %d and %d characters, got %d", minJustification, maxJustification, n)
	}
	return nil
}

// Contains reports whether a sequential number falls inside the burned range.
func (i *Inutilization) Contains(number int64) bool {
	return number >= i.NumberFirst && number <= i.NumberLast
}
