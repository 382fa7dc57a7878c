//go:build !darwin

package permissions

// platformCheck is a no-op on non-macOS platforms; access problems surface
// when the device is probed.
func platformCheck() error {
	return nil
}
