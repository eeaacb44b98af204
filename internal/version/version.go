// ABOUTME: Build identity constants
// ABOUTME: Version information reported in logs and the CLI
package version

const (
	Version      = "0.1.0"
	Product      = "Aria Player"
	Manufacturer = "Aria Audio"
)
