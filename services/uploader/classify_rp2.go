//go:build rp2040 || rp2350

package uploader

// MCU posters report their own negative codes; anything else is a lost
// connection.
func classifyNet(error) int { return CodeLost }
