// Package featureflags reads operational kill switches from the
// environment. A flag named "scheduler_disabled" maps to the variable
// FLAG_SCHEDULER_DISABLED.
package featureflags

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "FLAG_"

// Enabled reports whether the named flag is switched on. Truthy values
// are anything strconv.ParseBool accepts plus "yes" and "on"; unset or
// unparseable values mean off.
func Enabled(name string) bool {
	raw := os.Getenv(envPrefix + strings.ToUpper(name))
	switch strings.ToLower(raw) {
	case "yes", "on":
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
