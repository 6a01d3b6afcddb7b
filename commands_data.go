package melsec

import _ "embed"

//go:embed commands.yaml
var embeddedCommandsYAML []byte

// DefaultCommandRegistry parses and returns the embedded baseline command
// schema. Each call produces an independent registry; most callers want
// InitDefaults or SetGlobalCommandRegistry instead.
func DefaultCommandRegistry() (*CommandRegistry, error) {
	return parseCommandYAML(embeddedCommandsYAML)
}
