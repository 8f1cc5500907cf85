//go:build !windows

package webgpu

// NewNativeDevice reports ErrNoNativeDevice: the native binding is only
// built on windows.
func NewNativeDevice() (Device, error) {
	return nil, ErrNoNativeDevice
}
