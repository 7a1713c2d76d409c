package dynprog

import (
	"errors"
	"fmt"
)

// ErrConfig matches every ConfigError via errors.Is.
var ErrConfig = errors.New("dynprog: invalid configuration")

// ConfigError reports inconsistent or missing decoder inputs. It is returned
// before any dynamic programming work is done.
type ConfigError struct {
	Op  string
	Msg string
}

func (e *ConfigError) Error() string {
	return "dynprog: " + e.Op + ": " + e.Msg
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(op, format string, args ...any) error {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
