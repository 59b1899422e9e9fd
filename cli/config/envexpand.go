// Package config loads omcloud.yaml files: connection, protocol, logging,
// adapter, journal and archive defaults for the omcloud commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches ${NAME}, ${NAME:-fallback} and ${NAME:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// MissingEnvError reports a ${NAME:?message} reference to an unset or
// empty variable.
type MissingEnvError struct {
	Name    string
	Message string
}

func (e *MissingEnvError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("environment variable %s is required", e.Name)
	}
	return fmt.Sprintf("environment variable %s is required: %s", e.Name, e.Message)
}

// ExpandEnv substitutes environment references in input. An empty value
// counts as unset: ${NAME} becomes "", ${NAME:-fallback} becomes fallback
// and ${NAME:?message} is reported as a *MissingEnvError. Every missing
// required variable is reported, joined.
func ExpandEnv(input string) (string, error) {
	var missing []error
	out := envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]

		if value := os.Getenv(name); value != "" {
			return value
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			missing = append(missing, &MissingEnvError{Name: name, Message: strings.TrimSpace(arg)})
		}
		return ""
	})
	return out, errors.Join(missing...)
}
