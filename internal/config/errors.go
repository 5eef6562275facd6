package config

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// ConfigError is a configuration problem, positioned in the CUE source
// when the position is known.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
