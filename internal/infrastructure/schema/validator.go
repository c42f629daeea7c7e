package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"
)

// Validator checks fiscal XML against the official XSD set. The schema files
// are distributed by the fiscal authority and not redistributable here, so
// validation is optional: without NFE_XSD_PATH the validator passes
// everything through and DisabledReason explains why.
type Validator struct {
	mu       sync.Mutex
	handler  *xsdvalidate.XsdHandler
	disabled string
}

// New initializes libxml2 and loads the main document schema from the
// directory named by NFE_XSD_PATH.
func New() (*Validator, error) {
	dir := os.Getenv("NFE_XSD_PATH")
	if dir == "" {
		return &Validator{disabled: "NFE_XSD_PATH not set"}, nil
	}

	if err := xsdvalidate.Init(); err != nil {
		return nil, fmt.Errorf("initializing xsd runtime: %w", err)
	}

	schemaFile := filepath.Join(dir, "nfe_v4.00.xsd")
	handler, err := xsdvalidate.NewXsdHandlerUrl(schemaFile, xsdvalidate.ParsErrDefault)
	if err != nil {
		xsdvalidate.Cleanup()
		return nil, fmt.Errorf("loading schema %s: %w", schemaFile, err)
	}
	return &Validator{handler: handler}, nil
}

// Enabled reports whether documents are actually checked.
func (v *Validator) Enabled() bool { return v.handler != nil }

// DisabledReason explains a pass-through validator, empty when enabled.
func (v *Validator) DisabledReason() string { return v.disabled }

// Validate checks a serialized document against the loaded schema. libxml2
// handlers are not safe for concurrent validation, hence the lock.
func (v *Validator) Validate(xml []byte) error {
	if v.handler == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.handler.ValidateMem(xml, xsdvalidate.ValidErrDefault); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// Close releases the schema handler and the libxml2 runtime.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.handler != nil {
		v.handler.Free()
		v.handler = nil
		xsdvalidate.Cleanup()
	}
}
