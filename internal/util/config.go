package util

import (
	"os"

	"github.com/spf13/viper"
)

// ColorsEnabled reports whether log output should be colorized.
// Colors are disabled with --no-color or when stderr is not a terminal.
func ColorsEnabled() bool {
	if viper.GetBool("no-color") {
		return false
	}
	return IsTerminal(os.Stderr.Fd())
}

// ProgressEnabled reports whether progress bars should be drawn.
// Quiet mode and non-interactive output both suppress them.
func ProgressEnabled() bool {
	if viper.GetBool("quiet") {
		return false
	}
	return IsTerminal(os.Stderr.Fd())
}
