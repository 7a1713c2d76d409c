// Package banner renders the startup banner printed by the CLI.
package banner

import "fmt"

const art = `
  ___ __ __ ___  _ __
 / -_)\ \ // _ \| '  \
 \___|/_\_\\___/|_||_|
`

// Banner returns the banner followed by the version line.
func Banner(version string) string {
	return fmt.Sprintf("%s  n-best gene structure decoder %s\n\n", art, version)
}
