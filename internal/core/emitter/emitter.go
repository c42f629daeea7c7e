package emitter

import (
	"fmt"
	"strings"
	"time"
)

// TaxRegime is the CRT (Código de Regime Tributário) of the emitter.
type TaxRegime int

const (
	// RegimeSimples is Simples Nacional (CRT 1). Items carry CSOSN codes.
	RegimeSimples TaxRegime = 1
	// RegimeSimplesExcesso is Simples Nacional above the gross revenue
	// sublimit (CRT 2). Items carry CST codes like the normal regime.
	RegimeSimplesExcesso TaxRegime = 2
	// RegimeNormal is the normal regime (CRT 3). Items carry CST codes.
	RegimeNormal TaxRegime = 3
)

// Valid reports whether the regime is one of the three CRT values.
func (r TaxRegime) Valid() bool {
	return r == RegimeSimples || r == RegimeSimplesExcesso || r == RegimeNormal
}

// Simples reports whether items must carry CSOSN instead of CST.
func (r TaxRegime) Simples() bool { return r == RegimeSimples }

// Environment selects the SEFAZ environment a document is transmitted to.
type Environment int

const (
	// EnvironmentProduction is tpAmb 1.
	EnvironmentProduction Environment = 1
	// EnvironmentHomologation is tpAmb 2.
	EnvironmentHomologation Environment = 2
)

// Valid reports whether the environment is production or homologation.
func (e Environment) Valid() bool {
	return e == EnvironmentProduction || e == EnvironmentHomologation
}

// Address is the emitter's fiscal address. CityCode is the 7-digit IBGE
// municipal code; UF is the 2-letter state code.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string
	City       string
	UF         string
	ZipCode    string
}

// TechnicalResponsible identifies the party technically responsible for the
// emission software (infRespTec block, mandatory in layout 4.00).
type TechnicalResponsible struct {
	CNPJ    string
	Contact string
	Email   string
	Phone   string
}

// Emitter is the issuing company. Serie and LastNumber form the monotonic
// per-series counter; LastNumber is only ever advanced through
// Repository.AllocateNumber under a row lock.
type Emitter struct {
	ID                 int64
	LegalName          string
	TradeName          string
	CNPJ               string
	StateRegistration  string
	CityRegistration   string
	Regime             TaxRegime
	Address            Address
	Phone              string
	Email              string
	Serie              int
	LastNumber         int64
	Environment        Environment
	RespTec            TechnicalResponsible
	CertificateRef     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ufCodes maps the 2-letter state code to the IBGE cUF numeric code used in
// the access key and in inutilization requests.
var ufCodes = map[string]string{
	"AC": "12", "AL": "27", "AM": "13", "AP": "16", "BA": "29",
	"CE": "23", "DF": "53", "ES": "32", "GO": "52", "MA": "21",
	"MG": "31", "MS": "50", "MT": "51", "PA": "15", "PB": "25",
	"PE": "26", "PI": "22", "PR": "41", "RJ": "33", "RN": "24",
	"RO": "11", "RR": "14", "RS": "43", "SC": "42", "SE": "28",
	"SP": "35", "TO": "17",
}

// UFCode resolves the IBGE numeric state code for a 2-letter UF.
func UFCode(uf string) (string, error) {
	code, ok := ufCodes[strings.ToUpper(strings.TrimSpace(uf))]
	if !ok {
		return "", fmt.Errorf("unknown UF: %q", uf)
	}
	return code, nil
}

// ValidUF reports whether uf is a known 2-letter state code.
func ValidUF(uf string) bool {
	_, ok := ufCodes[strings.ToUpper(strings.TrimSpace(uf))]
	return ok
}

// OnlyDigits strips every non-digit rune from s. Taxpayer ids, phones and zip
// codes are transmitted digits-only.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks the emitter fields required to build and transmit documents.
func (e *Emitter) Validate() error {
	if strings.TrimSpace(e.LegalName) == "" {
		return fmt.Errorf("legal name is required")
	}
	if len(OnlyDigits(e.CNPJ)) != 14 {
		return fmt.Errorf("cnpj must have 14 digits")
	}
	if !e.Regime.Valid() {
		return fmt.Errorf("invalid tax regime: %d", e.Regime)
	}
	if !e.Environment.Valid() {
		return fmt.Errorf("invalid environment: %d", e.Environment)
	}
	if !ValidUF(e.Address.UF) {
		return fmt.Errorf("invalid UF: %q", e.Address.UF)
	}
	if len(OnlyDigits(e.Address.CityCode)) != 7 {
		return fmt.Errorf("city code must have 7 digits")
	}
	if e.Serie <= 0 || e.Serie > 999 {
		return fmt.Errorf("serie must be between 1 and 999")
	}
	return nil
}
