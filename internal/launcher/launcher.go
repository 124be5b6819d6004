// Package launcher builds argument vectors for the transcoder child
// process, one stateless strategy per protocol, grounded on
// original_source's streaming/{rtsp,rtmp,webrtc}.py
// (_prepare_input_args/_prepare_output_args). Strategies never execute
// anything themselves; the orchestrator owns process lifecycle.
package launcher

import (
	"fmt"
	"runtime"

	"github.com/rtaspi/rtaspi-core/internal/model"
)

// Launcher builds the ffmpeg argument vectors for one streaming
// protocol.
type Launcher interface {
	// InputArgs returns the transcoder's input-stage arguments for
	// device, or (nil, false) if the device's OS/driver combination is
	// unsupported.
	InputArgs(device model.LocalDevice) ([]string, bool)
	// OutputArgs returns the transcoder's output-stage arguments,
	// terminating in the protocol's destination URL, plus that URL.
	OutputArgs(device model.LocalDevice, port int, streamID string) ([]string, string)
}

// For returns the Launcher for protocol, or nil if unknown.
func For(protocol model.StreamProtocol) Launcher {
	switch protocol {
	case model.StreamProtoRTSP:
		return rtspLauncher{}
	case model.StreamProtoRTMP:
		return rtmpLauncher{}
	case model.StreamProtoWebRTC:
		return webrtcLauncher{}
	default:
		return nil
	}
}

// inputArgsFor covers the OS/driver matrix common to all three
// protocols (spec.md §4.10's driver table): Linux v4l2/alsa/pulse,
// macOS avfoundation, Windows dshow.
func inputArgsFor(device model.LocalDevice) ([]string, bool) {
	goos := runtime.GOOS

	switch device.Type {
	case model.DeviceTypeVideo:
		switch {
		case goos == "linux" && device.Driver == model.DriverV4L2:
			return []string{"-f", "v4l2", "-i", device.SystemPath}, true
		case goos == "darwin" && device.Driver == model.DriverAVFoundation:
			return []string{"-f", "avfoundation", "-framerate", "30", "-i", device.SystemPath + ":none"}, true
		case goos == "windows" && device.Driver == model.DriverDShow:
			return []string{"-f", "dshow", "-i", "video=" + device.SystemPath}, true
		}
	case model.DeviceTypeAudio:
		switch {
		case goos == "linux" && device.Driver == model.DriverALSA:
			return []string{"-f", "alsa", "-i", device.SystemPath}, true
		case goos == "linux" && device.Driver == model.DriverPulse:
			return []string{"-f", "pulse", "-i", device.SystemPath}, true
		case goos == "darwin" && device.Driver == model.DriverAVFoundation:
			return []string{"-f", "avfoundation", "-i", "none:" + device.SystemPath}, true
		case goos == "windows" && device.Driver == model.DriverDShow:
			return []string{"-f", "dshow", "-i", "audio=" + device.SystemPath}, true
		}
	}
	return nil, false
}

// encoderArgsFor returns the device-type-dependent encoder settings
// shared by every protocol: H.264 low-latency for video, AAC for audio
// (spec.md §4.10).
func encoderArgsFor(device model.LocalDevice) []string {
	if device.Type == model.DeviceTypeAudio {
		return []string{"-c:a", "aac", "-b:a", "128k"}
	}
	return []string{"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency", "-c:a", "aac", "-b:a", "128k"}
}

type rtspLauncher struct{}

func (rtspLauncher) InputArgs(device model.LocalDevice) ([]string, bool) {
	return inputArgsFor(device)
}

func (rtspLauncher) OutputArgs(device model.LocalDevice, port int, streamID string) ([]string, string) {
	url := fmt.Sprintf("rtsp://localhost:%d/%s", port, streamID)
	args := append(encoderArgsFor(device), "-f", "rtsp", url)
	return args, url
}

type rtmpLauncher struct{}

func (rtmpLauncher) InputArgs(device model.LocalDevice) ([]string, bool) {
	return inputArgsFor(device)
}

func (rtmpLauncher) OutputArgs(device model.LocalDevice, port int, streamID string) ([]string, string) {
	url := fmt.Sprintf("rtmp://localhost:%d/live/%s", port, streamID)
	args := append(encoderArgsFor(device), "-f", "flv", url)
	return args, url
}

type webrtcLauncher struct{}

func (webrtcLauncher) InputArgs(device model.LocalDevice) ([]string, bool) {
	return inputArgsFor(device)
}

func (webrtcLauncher) OutputArgs(device model.LocalDevice, port int, streamID string) ([]string, string) {
	url := fmt.Sprintf("http://localhost:%d/webrtc.html?stream=%s", port, streamID)
	// The WebRTC transcoder target is a local RTP endpoint the
	// signaling pipeline (ancillary process) bridges to the browser;
	// the HTTP URL above is what callers are given, not the ffmpeg
	// destination.
	args := append(encoderArgsFor(device), "-f", "rtp", fmt.Sprintf("rtp://127.0.0.1:%d", port+1))
	return args, url
}
