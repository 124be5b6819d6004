// Package localdevices implements the Local Device Manager (C6):
// periodic scan loop, command dispatch on command/local_devices/#, and
// delegation to the stream orchestrator, grounded on
// original_source/src/rtaspi/device_managers/{local_devices.py,
// command_handler.py}.
package localdevices

import "github.com/rtaspi/rtaspi-core/internal/model"

// Scanner enumerates local capture devices. Implementations are
// platform-specific (v4l2 on Linux, AVFoundation on macOS, DirectShow
// on Windows); this package is agnostic to which one is wired in.
type Scanner interface {
	ScanVideoDevices() (map[string]model.LocalDevice, error)
	ScanAudioDevices() (map[string]model.LocalDevice, error)
}
