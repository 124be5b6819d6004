package networkdevices

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/busclient"
	"github.com/rtaspi/rtaspi-core/internal/config"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/model"
	"github.com/rtaspi/rtaspi-core/internal/netstore"
	"github.com/rtaspi/rtaspi-core/internal/registry"
)

const tickInterval = time.Second

// Manager is the Network Device Manager (C7): it owns the network
// device registry, periodically re-probes reachability and runs
// discovery ingestion, and dispatches command/network_devices/# CRUD
// commands, persisting every mutation via netstore.
type Manager struct {
	bus     *busclient.Client
	cfg     *config.Store
	log     *logging.Logger
	monitor Monitor
	store   *netstore.Store

	devices *registry.Registry[model.NetworkDevice]

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Manager, loads any previously persisted devices, and
// subscribes it to command/network_devices/#.
func New(bus *busclient.Client, cfg *config.Store, log *logging.Logger, monitor Monitor, storageRoot string) (*Manager, error) {
	store := netstore.New(storageRoot, log)
	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("networkdevices: loading saved devices: %w", err)
	}

	devices := registry.New[model.NetworkDevice]()
	devices.Replace(loaded)

	m := &Manager{
		bus:     bus,
		cfg:     cfg,
		log:     log,
		monitor: monitor,
		store:   store,
		devices: devices,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	bus.Subscribe("command/network_devices/#", m.handleCommand)
	return m, nil
}

// Start runs an initial scan synchronously, then launches the periodic
// scan loop.
func (m *Manager) Start() {
	m.scan()
	go m.scanLoop()
}

func (m *Manager) scanLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	interval := time.Duration(m.cfg.GetInt("network_devices.scan_interval", 60)) * time.Second
	elapsed := time.Duration(0)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			elapsed += tickInterval
			if elapsed >= interval {
				elapsed = 0
				m.scan()
			}
		}
	}
}

// scan re-probes every known device whose last check is stale by at
// least half the configured interval, then ingests discovery records
// for devices not already registered (spec.md §4.7).
func (m *Manager) scan() {
	now := time.Now()
	half := time.Duration(m.cfg.GetInt("network_devices.scan_interval", 60)) * time.Second / 2

	for _, d := range m.devices.List() {
		if now.Sub(d.LastChecked) < half {
			continue
		}
		prevStatus := d.Status
		newStatus := m.monitor.CheckDeviceStatus(d)
		m.devices.UpdateStatus(d.DeviceID, func(cur model.NetworkDevice) model.NetworkDevice {
			cur.Status = newStatus
			cur.LastChecked = now
			return cur
		})
		if newStatus != prevStatus {
			m.bus.Publish("event/network_devices/status/"+d.DeviceID, map[string]any{
				"device_id": d.DeviceID,
				"status":    newStatus,
			})
		}
	}

	if m.cfg.GetBool("network_devices.discovery_enabled", true) {
		m.ingestDiscovered()
	}

	m.persist()
	m.publishDevices()
}

// ingestDiscovered runs the Monitor's discovery sweep and registers any
// record whose (ip, port) isn't already known (spec.md §4.7 step 2).
func (m *Manager) ingestDiscovered() {
	found, err := m.monitor.DiscoverDevices()
	if err != nil {
		if m.log != nil {
			m.log.Errorf("network device discovery failed: %v", err)
		}
		return
	}

	for _, d := range found {
		if m.findByAddr(d.IP, d.Port) {
			continue
		}
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("Device %s", d.IP)
		}
		protocol := d.Protocol
		if protocol == "" {
			protocol = model.NetworkProtoRTSP
		}
		deviceType := d.Type
		if deviceType == "" {
			deviceType = model.DeviceTypeVideo
		}

		device := model.NetworkDevice{
			Device: model.Device{
				DeviceID:    model.NetworkDeviceID(d.IP, d.Port),
				Name:        name,
				Type:        deviceType,
				Status:      model.StatusUnknown,
				LastChecked: time.Now(),
			},
			IP:       d.IP,
			Port:     d.Port,
			Protocol: protocol,
			Streams:  streamsFromPaths(model.NetworkDeviceID(d.IP, d.Port), baseURLFor(d), d.Paths),
		}
		m.devices.Insert(device.DeviceID, device)
		m.bus.Publish("event/network_devices/added/"+device.DeviceID, snapshot(device))
	}
}

func baseURLFor(d DiscoveredDevice) string {
	return fmt.Sprintf("%s://%s:%d", string(d.Protocol), d.IP, d.Port)
}

func streamsFromPaths(deviceID, baseURL string, paths []string) map[string]string {
	if len(paths) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(paths))
	for i, p := range paths {
		out[fmt.Sprintf("%s_%d", deviceID, i)] = baseURL + "/" + strings.TrimPrefix(p, "/")
	}
	return out
}

func (m *Manager) findByAddr(ip string, port int) bool {
	for _, d := range m.devices.List() {
		if d.IP == ip && d.Port == port {
			return true
		}
	}
	return false
}

func (m *Manager) persist() {
	if err := m.store.Save(m.snapshotMap()); err != nil && m.log != nil {
		m.log.Errorf("network device persistence failed: %v", err)
	}
}

func (m *Manager) snapshotMap() map[string]model.NetworkDevice {
	list := m.devices.List()
	out := make(map[string]model.NetworkDevice, len(list))
	for _, d := range list {
		out[d.DeviceID] = d
	}
	return out
}

// snapshot strips credentials before a value crosses the bus (they are
// already zero-valued on model.NetworkDevice instances built here, but
// this keeps the publish call sites explicit about the invariant).
func snapshot(d model.NetworkDevice) model.NetworkDevice {
	d.Credentials = model.Credentials{}
	return d
}

func (m *Manager) handleCommand(topic string, payload any) {
	suffix := topicSuffix(topic)
	args, _ := payload.(map[string]any)

	switch suffix {
	case "add":
		m.handleAdd(args)
	case "remove":
		m.handleRemove(args)
	case "update":
		m.handleUpdate(args)
	case "scan":
		m.scan()
	case "get_devices":
		m.publishDevices()
	default:
		m.log.Warnf("unknown network_devices command: %q", suffix)
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("unknown command: %s", suffix)))
	}
}

// publishDevices emits the full current registry under info/network_devices,
// shaped as {devices: {id -> device}} per spec.md §6.
func (m *Manager) publishDevices() {
	m.bus.Publish("info/network_devices", map[string]any{
		"devices": redact(m.devices.List()),
	})
}

func redact(devices []model.NetworkDevice) map[string]model.NetworkDevice {
	out := make(map[string]model.NetworkDevice, len(devices))
	for _, d := range devices {
		out[d.DeviceID] = snapshot(d)
	}
	return out
}

func (m *Manager) handleAdd(args map[string]any) {
	name, _ := args["name"].(string)
	ip, _ := args["ip"].(string)
	deviceType, _ := args["type"].(string)
	protocol, _ := args["protocol"].(string)
	port := intArg(args, "port", 554)

	if deviceType == "" {
		deviceType = "video"
	}
	if protocol == "" {
		protocol = "rtsp"
	}

	if err := validateAdd(name, ip, port, deviceType, protocol); err != nil {
		m.bus.Publish("event/network_devices/error", model.Fail(err))
		return
	}

	deviceID := model.NetworkDeviceID(ip, port)
	if _, exists := m.devices.Get(deviceID); exists {
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("device already registered: %s", deviceID)))
		return
	}

	device := model.NetworkDevice{
		Device: model.Device{
			DeviceID:    deviceID,
			Name:        name,
			Type:        model.DeviceType(deviceType),
			Status:      model.StatusUnknown,
			LastChecked: time.Now(),
		},
		IP:       ip,
		Port:     port,
		Protocol: model.NetworkProtocol(protocol),
		Streams:  map[string]string{},
	}
	m.devices.Insert(deviceID, device)
	m.persist()
	m.bus.Publish("event/network_devices/added/"+deviceID, snapshot(device))
}

func (m *Manager) handleRemove(args map[string]any) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("missing required device_id parameter")))
		return
	}
	if _, ok := m.devices.Get(deviceID); !ok {
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("unknown device_id: %s", deviceID)))
		return
	}
	m.devices.Remove(deviceID)
	m.persist()
	m.bus.Publish("event/network_devices/removed/"+deviceID, map[string]any{"device_id": deviceID})
}

func (m *Manager) handleUpdate(args map[string]any) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("missing required device_id parameter")))
		return
	}

	ok := m.devices.UpdateStatus(deviceID, func(cur model.NetworkDevice) model.NetworkDevice {
		if name, ok := args["name"].(string); ok && name != "" {
			cur.Name = name
		}
		if protocol, ok := args["protocol"].(string); ok && protocol != "" {
			cur.Protocol = model.NetworkProtocol(protocol)
		}
		if deviceType, ok := args["type"].(string); ok && deviceType != "" {
			cur.Type = model.DeviceType(deviceType)
		}
		return cur
	})
	if !ok {
		m.bus.Publish("event/network_devices/error", model.Fail(fmt.Errorf("unknown device_id: %s", deviceID)))
		return
	}

	m.persist()
	if updated, ok := m.devices.Get(deviceID); ok {
		m.bus.Publish("event/network_devices/updated/"+deviceID, snapshot(updated))
	}
}

func validateAdd(name, ip string, port int, deviceType, protocol string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if net.ParseIP(ip) == nil || strings.Count(ip, ".") != 3 || strings.Contains(ip, ":") {
		return fmt.Errorf("ip must be a dotted-quad address: %q", ip)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range: %d", port)
	}
	switch model.DeviceType(deviceType) {
	case model.DeviceTypeVideo, model.DeviceTypeAudio:
	default:
		return fmt.Errorf("type must be video or audio: %q", deviceType)
	}
	switch model.NetworkProtocol(protocol) {
	case model.NetworkProtoRTSP, model.NetworkProtoRTMP, model.NetworkProtoHTTP:
	default:
		return fmt.Errorf("protocol must be rtsp, rtmp, or http: %q", protocol)
	}
	return nil
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Stop halts the scan loop. There is nothing analogous to the
// orchestrator's stream drain here: network devices own no child
// processes.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func topicSuffix(topic string) string {
	const prefix = "command/network_devices/"
	if len(topic) > len(prefix) {
		return topic[len(prefix):]
	}
	return ""
}
