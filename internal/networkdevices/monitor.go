// Package networkdevices implements the Network Device Manager (C7):
// periodic reachability probing, discovery ingestion, and CRUD commands
// over the bus, grounded on
// original_source/src/rtaspi/device_managers/network_devices.py.
package networkdevices

import (
	"net"
	"strconv"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/model"
)

// DiscoveredDevice is one record surfaced by Monitor.DiscoverDevices: a
// network device seen on the wire but not yet registered.
type DiscoveredDevice struct {
	IP       string
	Port     int
	Type     model.DeviceType
	Protocol model.NetworkProtocol
	Username string
	Password string
	Paths    []string
	Name     string
}

// Monitor probes and discovers network devices. Implementations wrap the
// actual transport (ONVIF/UPnP/mDNS probes, raw TCP reachability checks).
type Monitor interface {
	CheckDeviceStatus(device model.NetworkDevice) model.DeviceStatus
	DiscoverDevices() ([]DiscoveredDevice, error)
}

// TCPMonitor implements Monitor with a bare TCP-connect reachability
// check (mirroring the original's socket-based probe, which treats an
// open port as sufficient evidence of "online" regardless of protocol)
// and no active discovery backend wired in.
type TCPMonitor struct {
	DialTimeout time.Duration
}

// NewTCPMonitor returns a TCPMonitor with a 2-second dial timeout,
// matching original_source's socket.settimeout(2).
func NewTCPMonitor() *TCPMonitor {
	return &TCPMonitor{DialTimeout: 2 * time.Second}
}

func (m *TCPMonitor) CheckDeviceStatus(device model.NetworkDevice) model.DeviceStatus {
	addr := net.JoinHostPort(device.IP, strconv.Itoa(device.Port))
	conn, err := net.DialTimeout("tcp", addr, m.DialTimeout)
	if err != nil {
		return model.StatusOffline
	}
	_ = conn.Close()
	return model.StatusOnline
}

// DiscoverDevices returns no records: no ONVIF/UPnP/mDNS backend is
// wired in by default. Deployments that want active discovery supply
// their own Monitor implementation.
func (m *TCPMonitor) DiscoverDevices() ([]DiscoveredDevice, error) {
	return nil, nil
}
