package entry

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration classifies configuration failures raised while
// building a transfer. Use errors.Is(err, ErrInvalidConfiguration).
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrAlreadySubmitted is returned when a transfer is started twice
// without Reset.
var ErrAlreadySubmitted = errors.New("transfer already submitted")

// ConfigError names the offending setting of a configuration failure.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidConfiguration, e.Msg)
}

// Is matches ErrInvalidConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
