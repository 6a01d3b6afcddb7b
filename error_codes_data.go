package melsec

import _ "embed"

//go:embed error_codes.yaml
var embeddedErrorCodesYAML []byte

// DefaultErrorCatalog parses and returns the embedded baseline error code
// catalog.
func DefaultErrorCatalog() (*ErrorCatalog, error) {
	return parseErrorCodeYAML(embeddedErrorCodesYAML)
}
