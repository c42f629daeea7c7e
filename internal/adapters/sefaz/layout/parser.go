package layout

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Parse decodes a serialized NFe and checks the structural invariants a
// document must hold before it is signed or retransmitted: layout version,
// Id/key agreement and the key's check digit.
func Parse(raw []byte) (*NFe, error) {
	var doc NFe
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc.InfNFe.Versao != Version {
		return nil, fmt.Errorf("unsupported layout version %q", doc.InfNFe.Versao)
	}
	key := strings.TrimPrefix(doc.InfNFe.Id, "NFe")
	if !ValidAccessKey(key) {
		return nil, fmt.Errorf("document id %q does not carry a valid access key", doc.InfNFe.Id)
	}
	if doc.InfNFe.Ide.CDV != key[43:] {
		return nil, fmt.Errorf("cDV %q disagrees with access key %q", doc.InfNFe.Ide.CDV, key)
	}
	return &doc, nil
}

// AccessKeyOf extracts the 44-digit key from a parsed document.
func AccessKeyOf(doc *NFe) string {
	return strings.TrimPrefix(doc.InfNFe.Id, "NFe")
}
