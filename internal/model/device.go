// Package model defines the shared data types that flow through the
// broker, the device registries, and the stream orchestrator.
package model

import (
	"strconv"
	"time"
)

// DeviceType classifies a device by the kind of media it produces.
type DeviceType string

const (
	DeviceTypeVideo DeviceType = "video"
	DeviceTypeAudio DeviceType = "audio"
)

// DeviceStatus tracks last-known reachability of a device.
type DeviceStatus string

const (
	StatusUnknown DeviceStatus = "unknown"
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Driver enumerates the local capture backends a LocalDevice may use.
// The set mirrors the OS/driver matrix a Protocol Launcher must cover.
type Driver string

const (
	DriverV4L2        Driver = "v4l2"
	DriverALSA        Driver = "alsa"
	DriverPulse       Driver = "pulse"
	DriverAVFoundation Driver = "avfoundation"
	DriverDShow       Driver = "dshow"
)

// NetworkProtocol enumerates the wire protocol a NetworkDevice speaks.
type NetworkProtocol string

const (
	NetworkProtoRTSP NetworkProtocol = "rtsp"
	NetworkProtoRTMP NetworkProtocol = "rtmp"
	NetworkProtoHTTP NetworkProtocol = "http"
)

// StreamProtocol enumerates the protocols the orchestrator can publish a
// stream over.
type StreamProtocol string

const (
	StreamProtoRTSP   StreamProtocol = "rtsp"
	StreamProtoRTMP   StreamProtocol = "rtmp"
	StreamProtoWebRTC StreamProtocol = "webrtc"
)

// Device is the common header shared by LocalDevice and NetworkDevice,
// which embed it; the variant is carried by the static type.
type Device struct {
	DeviceID      string       `json:"device_id"`
	Name          string       `json:"name"`
	Type          DeviceType   `json:"type"`
	Status        DeviceStatus `json:"status"`
	LastChecked   time.Time    `json:"last_checked"`
}

// LocalDevice is a capture device attached to the host running this
// process (a camera or microphone enumerated by a platform-specific
// Scanner collaborator).
type LocalDevice struct {
	Device
	SystemPath  string   `json:"system_path"`
	Driver      Driver   `json:"driver"`
	Formats     []string `json:"formats"`
	Resolutions []string `json:"resolutions"`
}

// Credentials holds optional authentication material for a NetworkDevice.
// It is never serialized as part of a persisted NetworkDevice snapshot
// or an outbound bus payload (spec.md §3 invariant 5).
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// NetworkDevice is a device reachable over the network (an IP camera or
// other ONVIF/UPnP/mDNS-discoverable endpoint). Its DeviceID is always
// the canonical "{ip}:{port}" string.
type NetworkDevice struct {
	Device
	IP          string            `json:"ip"`
	Port        int               `json:"port"`
	Protocol    NetworkProtocol   `json:"protocol"`
	Credentials Credentials       `json:"-"`
	Streams     map[string]string `json:"streams"`
}

// NetworkDeviceID returns the canonical device_id for a network device:
// the "{ip}:{port}" pair (spec.md §3 invariant 1).
func NetworkDeviceID(ip string, port int) string {
	return ip + ":" + strconv.Itoa(port)
}
