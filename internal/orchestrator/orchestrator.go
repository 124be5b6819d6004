// Package orchestrator implements the Stream Orchestrator described in
// spec.md §4.8: per-(device_id, protocol) singleton streams, free-port
// allocation via bounded TCP-connect probing, and graceful-then-forced
// child-process lifecycle. It is grounded on
// original_source/src/rtaspi/device_managers/stream_manager.py for the
// start/stop sequence and on redb-open's ServiceProcess for the Go
// process-supervision idiom.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rtaspi/rtaspi-core/internal/launcher"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/model"
)

const (
	maxPortScan        = 1000
	portProbeTimeout   = 100 * time.Millisecond
	postLaunchSettle   = 2 * time.Second
	ancillaryExecPath  = "nginx"
	transcoderExecPath = "ffmpeg"
	httpServerExecPath = "python3"
)

// DeviceLookup resolves a device_id to its LocalDevice, used by Start to
// validate the device exists and to build launcher arguments.
type DeviceLookup func(deviceID string) (model.LocalDevice, bool)

// PortBase returns the configured starting port for a protocol.
type PortBase func(protocol model.StreamProtocol) int

// EventPublisher is the minimal bus-facing surface the orchestrator
// needs to announce stream lifecycle events; satisfied by
// *busclient.Client.
type EventPublisher interface {
	Publish(topic string, payload any)
}

// stream is the orchestrator's internal record: the bus-facing
// StreamSnapshot plus the process handles that must never cross the
// critical-section boundary (spec.md §3 invariant 4). ready is closed
// once launch has finished (successfully or not); a concurrent Start
// for the same (device_id, protocol) waits on it instead of reading
// snapshot.URL before it is populated (spec.md §4.8 invariant: two
// concurrent starts for the same pair "either both return the same
// url or one creates and one finds").
type stream struct {
	snapshot  model.StreamSnapshot
	outputDir string
	portValue int
	primary   *managedProcess
	ancillary *managedProcess
	ready     chan struct{}
	launchErr error
}

// Orchestrator owns a single manager's set of active streams.
type Orchestrator struct {
	storageRoot string
	lookup      DeviceLookup
	portBase    PortBase
	stunServer  string
	bus         EventPublisher
	log         *logging.Logger
	topicPrefix string // e.g. "local_devices"

	// Executable names for the child processes this orchestrator
	// launches. Defaulted in New; overridable (tests only) to stand in
	// for ffmpeg/nginx/python3 with a always-available binary.
	transcoderExec string
	nginxExec      string
	httpServerExec string
	settleDelay    time.Duration

	mu      sync.Mutex
	streams map[string]*stream
}

// New constructs an Orchestrator. topicPrefix is used to build the
// "event/{topicPrefix}/stream_started"-shaped topics it publishes to.
func New(storageRoot string, lookup DeviceLookup, portBase PortBase, stunServer string, bus EventPublisher, log *logging.Logger, topicPrefix string) *Orchestrator {
	return &Orchestrator{
		storageRoot:    storageRoot,
		lookup:         lookup,
		portBase:       portBase,
		stunServer:     stunServer,
		bus:            bus,
		log:            log,
		topicPrefix:    topicPrefix,
		transcoderExec: transcoderExecPath,
		nginxExec:      ancillaryExecPath,
		httpServerExec: httpServerExecPath,
		settleDelay:    postLaunchSettle,
		streams:        make(map[string]*stream),
	}
}

// Start begins a stream for deviceID over protocol, or returns the URL
// of an already-running one for the same (device_id, protocol) pair
// (spec.md §4.8 step 2).
func (o *Orchestrator) Start(ctx context.Context, deviceID string, protocol model.StreamProtocol) (string, error) {
	l := launcher.For(protocol)
	if l == nil {
		return "", fmt.Errorf("orchestrator: unsupported protocol %q", protocol)
	}

	device, ok := o.lookup(deviceID)
	if !ok {
		return "", fmt.Errorf("orchestrator: unknown device %q", deviceID)
	}

	o.mu.Lock()
	for _, s := range o.streams {
		if s.snapshot.DeviceID == deviceID && s.snapshot.Protocol == protocol {
			o.mu.Unlock()
			<-s.ready // wait for the in-flight launch to finish, not its placeholder
			if s.launchErr != nil {
				return "", s.launchErr
			}
			return s.snapshot.URL, nil
		}
	}

	port, err := o.findFreePortLocked(protocol)
	if err != nil {
		o.mu.Unlock()
		return "", err
	}

	streamID := uuid.NewString()
	placeholder := &stream{
		snapshot: model.StreamSnapshot{
			StreamID: streamID, DeviceID: deviceID, DeviceType: device.Type, Protocol: protocol,
		},
		portValue: port, // claimed now, while still under lock, so a
		// concurrent Start for another device excludes this port
		// immediately (spec.md §4.8 invariant: port allocation and
		// stream insertion are one critical section).
		ready: make(chan struct{}),
	}
	o.streams[streamID] = placeholder
	o.mu.Unlock()

	url, err := o.launch(ctx, placeholder, device, protocol, port, l)
	if err != nil {
		o.mu.Lock()
		placeholder.launchErr = err
		delete(o.streams, streamID)
		o.mu.Unlock()
		close(placeholder.ready)
		return "", err
	}

	o.mu.Lock()
	placeholder.snapshot.URL = url
	o.mu.Unlock()
	close(placeholder.ready)

	o.publish("stream_started", map[string]any{
		"stream_id": streamID, "device_id": deviceID, "type": device.Type, "protocol": protocol, "url": url,
	})
	return url, nil
}

// findFreePortLocked scans base..base+maxPortScan for the first port
// that both fails a TCP connect probe and is not already claimed by a
// running stream. Callers must hold o.mu.
func (o *Orchestrator) findFreePortLocked(protocol model.StreamProtocol) (int, error) {
	base := o.portBase(protocol)

	used := make(map[int]struct{}, len(o.streams))
	for _, s := range o.streams {
		if s.port() > 0 {
			used[s.port()] = struct{}{}
		}
	}

	for port := base; port < base+maxPortScan; port++ {
		if _, claimed := used[port]; claimed {
			continue
		}
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), portProbeTimeout)
		if err != nil {
			return port, nil // connect failed: port is unbound
		}
		conn.Close()
	}
	return 0, fmt.Errorf("orchestrator: out of ports starting from %d", base)
}

func (s *stream) port() int {
	return s.portValue
}

func (o *Orchestrator) launch(ctx context.Context, s *stream, device model.LocalDevice, protocol model.StreamProtocol, port int, l launcher.Launcher) (string, error) {
	outputDir := filepath.Join(o.storageRoot, "streams", s.snapshot.StreamID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: create output dir: %w", err)
	}
	s.outputDir = outputDir

	inputArgs, ok := l.InputArgs(device)
	if !ok {
		return "", fmt.Errorf("orchestrator: unsupported platform/driver combination for device %q", device.DeviceID)
	}
	outputArgs, url := l.OutputArgs(device, port, s.snapshot.StreamID)

	var ancillaryName string
	var ancillaryArgs []string
	switch protocol {
	case model.StreamProtoRTMP:
		cfgPath, err := launcher.WriteNginxConfig(outputDir, port)
		if err != nil {
			return "", fmt.Errorf("orchestrator: write nginx config: %w", err)
		}
		ancillaryName = o.nginxExec
		ancillaryArgs = []string{"-c", cfgPath, "-p", outputDir}
	case model.StreamProtoWebRTC:
		if _, err := launcher.WriteWebRTCConfig(outputDir, launcher.WebRTCConfig{
			Port: port, StreamID: s.snapshot.StreamID, DeviceID: device.DeviceID,
			DeviceType: string(device.Type), STUNServer: o.stunServer,
		}); err != nil {
			return "", fmt.Errorf("orchestrator: write webrtc config: %w", err)
		}
		if _, err := launcher.WriteWebRTCHTML(outputDir, s.snapshot.StreamID, o.stunServer); err != nil {
			return "", fmt.Errorf("orchestrator: write webrtc html: %w", err)
		}
		ancillaryName = o.httpServerExec
		ancillaryArgs = launcher.HTTPServerArgs(outputDir, port)
	}

	if ancillaryName != "" {
		proc, err := startProcess(ctx, ancillaryName, ancillaryArgs)
		if err != nil {
			return "", fmt.Errorf("orchestrator: start ancillary process: %w", err)
		}
		s.ancillary = proc
		time.Sleep(o.settleDelay)
		if !proc.alive() {
			return "", fmt.Errorf("orchestrator: ancillary process exited immediately")
		}
	}

	args := append(append([]string{"-hide_banner"}, inputArgs...), outputArgs...)
	primary, err := startProcess(ctx, o.transcoderExec, args)
	if err != nil {
		s.ancillary.stop()
		return "", fmt.Errorf("orchestrator: start transcoder process: %w", err)
	}
	s.primary = primary
	time.Sleep(o.settleDelay)
	if !primary.alive() {
		s.ancillary.stop()
		primary.stop()
		return "", fmt.Errorf("orchestrator: transcoder process exited immediately")
	}

	return url, nil
}

// Stop terminates and removes the stream identified by streamID. It
// reports whether a stream was found (spec.md §4.8: "idempotent in
// effect").
func (o *Orchestrator) Stop(streamID string) bool {
	o.mu.Lock()
	s, ok := o.streams[streamID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	delete(o.streams, streamID)
	o.mu.Unlock()

	s.primary.stop()
	s.ancillary.stop()

	o.publish("stream_stopped", map[string]any{
		"stream_id": streamID, "device_id": s.snapshot.DeviceID, "type": s.snapshot.DeviceType,
	})
	return true
}

// Snapshot returns a copy of every currently-tracked stream, safe to
// hand to a bus publish (no process handles attached).
func (o *Orchestrator) Snapshot() []model.StreamSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.StreamSnapshot, 0, len(o.streams))
	for _, s := range o.streams {
		out = append(out, s.snapshot)
	}
	return out
}

// Shutdown stops every tracked stream, draining the orchestrator before
// the owning manager closes its bus client (spec.md §4.8 "Shutdown").
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.streams))
	for id := range o.streams {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.Stop(id)
	}
}

func (o *Orchestrator) publish(event string, payload any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(fmt.Sprintf("event/%s/%s", o.topicPrefix, event), payload)
}
