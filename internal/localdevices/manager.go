package localdevices

import (
	"context"
	"fmt"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/busclient"
	"github.com/rtaspi/rtaspi-core/internal/config"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/model"
	"github.com/rtaspi/rtaspi-core/internal/orchestrator"
	"github.com/rtaspi/rtaspi-core/internal/registry"
)

const tickInterval = time.Second

// Manager is the Local Device Manager (C6): it owns the video/audio
// registries, runs the periodic scan loop, and dispatches
// command/local_devices/# commands to the orchestrator.
type Manager struct {
	bus     *busclient.Client
	cfg     *config.Store
	log     *logging.Logger
	scanner Scanner
	orch    *orchestrator.Orchestrator

	video *registry.Registry[model.LocalDevice]
	audio *registry.Registry[model.LocalDevice]

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Manager and subscribes it to command/local_devices/#
// on bus. It does not start the scan loop; call Start for that.
func New(bus *busclient.Client, cfg *config.Store, log *logging.Logger, scanner Scanner, storageRoot string) *Manager {
	video := registry.New[model.LocalDevice]()
	audio := registry.New[model.LocalDevice]()

	m := &Manager{
		bus:     bus,
		cfg:     cfg,
		log:     log,
		scanner: scanner,
		video:   video,
		audio:   audio,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	lookup := func(id string) (model.LocalDevice, bool) {
		if d, ok := video.Get(id); ok {
			return d, true
		}
		return audio.Get(id)
	}
	portBase := func(protocol model.StreamProtocol) int {
		switch protocol {
		case model.StreamProtoRTMP:
			return cfg.GetInt("local_devices.rtmp_port_start", 1935)
		case model.StreamProtoWebRTC:
			return cfg.GetInt("local_devices.webrtc_port_start", 8080)
		default:
			return cfg.GetInt("local_devices.rtsp_port_start", 8554)
		}
	}
	m.orch = orchestrator.New(storageRoot, lookup, portBase, cfg.GetString("streaming.webrtc.stun_server", ""), bus, log, "local_devices")

	bus.Subscribe("command/local_devices/#", m.handleCommand)
	return m
}

// Start launches the periodic scan loop. An initial scan runs
// synchronously before returning so the first info/local_devices
// publication happens promptly.
func (m *Manager) Start() {
	m.scanAndPublish()
	go m.scanLoop()
}

func (m *Manager) scanLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	interval := time.Duration(m.cfg.GetInt("local_devices.scan_interval", 60)) * time.Second
	elapsed := time.Duration(0)

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			elapsed += tickInterval
			if elapsed >= interval {
				elapsed = 0
				m.scanAndPublish()
			}
		}
	}
}

func (m *Manager) scanAndPublish() {
	if m.cfg.GetBool("local_devices.enable_video", true) {
		if devices, err := m.scanner.ScanVideoDevices(); err == nil {
			m.video.Replace(devices)
		} else if m.log != nil {
			m.log.Errorf("local device scan (video) failed: %v", err)
		}
	}
	if m.cfg.GetBool("local_devices.enable_audio", true) {
		if devices, err := m.scanner.ScanAudioDevices(); err == nil {
			m.audio.Replace(devices)
		} else if m.log != nil {
			m.log.Errorf("local device scan (audio) failed: %v", err)
		}
	}
	m.publishDevices()
}

func (m *Manager) publishDevices() {
	m.bus.Publish("info/local_devices", map[string]any{
		"video": redact(m.video.List()),
		"audio": redact(m.audio.List()),
	})
}

// redact returns devices keyed by device_id; LocalDevice carries no
// credentials, so this is a shape transform, not a scrub (spec.md
// §4.6's "credentials redacted" applies to NetworkDevice snapshots;
// kept here for symmetry with the info/network_devices payload).
func redact(devices []model.LocalDevice) map[string]model.LocalDevice {
	out := make(map[string]model.LocalDevice, len(devices))
	for _, d := range devices {
		out[d.DeviceID] = d
	}
	return out
}

func (m *Manager) handleCommand(topic string, payload any) {
	suffix := topicSuffix(topic)
	args, _ := payload.(map[string]any)

	switch suffix {
	case "scan":
		m.scanAndPublish()
	case "start_stream":
		m.handleStartStream(args)
	case "stop_stream":
		m.handleStopStream(args)
	case "get_devices":
		m.publishDevices()
	case "get_streams":
		m.bus.Publish("info/local_devices/streams", m.orch.Snapshot())
	default:
		m.log.Warnf("unknown local_devices command: %q", suffix)
		m.bus.Publish("event/local_devices/error", model.Fail(fmt.Errorf("unknown command: %s", suffix)))
	}
}

func (m *Manager) handleStartStream(args map[string]any) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		m.bus.Publish("event/local_devices/error", model.Fail(fmt.Errorf("missing required device_id parameter")))
		return
	}
	protocol := model.StreamProtocol("rtsp")
	if p, ok := args["protocol"].(string); ok && p != "" {
		protocol = model.StreamProtocol(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := m.orch.Start(ctx, deviceID, protocol); err != nil {
		m.bus.Publish("event/local_devices/error", model.Fail(err))
	}
	// On success the orchestrator itself publishes stream_started with
	// the full {stream_id, device_id, type, protocol, url} payload.
}

func (m *Manager) handleStopStream(args map[string]any) {
	streamID, _ := args["stream_id"].(string)
	if streamID == "" {
		m.bus.Publish("event/local_devices/error", model.Fail(fmt.Errorf("missing required stream_id parameter")))
		return
	}
	if !m.orch.Stop(streamID) {
		m.bus.Publish("event/local_devices/error", model.Fail(fmt.Errorf("unknown stream_id: %s", streamID)))
	}
	// On success the orchestrator itself publishes stream_stopped.
}

// Stop drains all streams and halts the scan loop (spec.md §4.8
// "Shutdown": the orchestrator drains before the bus client closes).
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
	m.orch.Shutdown()
}

func topicSuffix(topic string) string {
	const prefix = "command/local_devices/"
	if len(topic) > len(prefix) {
		return topic[len(prefix):]
	}
	return ""
}
