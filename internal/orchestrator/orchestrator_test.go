package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests drive the orchestrator's input-arg path through the real
// RTSP launcher, so they need a device whose driver the current OS
// actually supports (see launcher.inputArgsFor's matrix).
func skipUnlessLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("exercises the v4l2 input-args path, linux-only")
	}
}

// writeStandinScript writes an executable shell script at dir/name that
// ignores all arguments and either sleeps (stays "alive") or exits
// immediately, standing in for ffmpeg/nginx/python3 in tests.
func writeStandinScript(t *testing.T, dir, name string, staysAlive bool) string {
	t.Helper()
	body := "#!/bin/sh\nexit 0\n"
	if staysAlive {
		body = "#!/bin/sh\nsleep 5\n"
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(topic string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, topic)
}

func testDevice(id string) model.LocalDevice {
	return model.LocalDevice{
		Device:     model.Device{DeviceID: id, Type: model.DeviceTypeVideo},
		SystemPath: "/dev/video0",
		Driver:     model.DriverV4L2,
	}
}

func newTestOrchestrator(t *testing.T, transcoderAlive bool, devices map[string]model.LocalDevice) (*Orchestrator, *recordingPublisher) {
	t.Helper()
	binDir := t.TempDir()
	storageRoot := t.TempDir()
	transcoder := writeStandinScript(t, binDir, "ffmpeg", transcoderAlive)

	pub := &recordingPublisher{}
	lookup := func(id string) (model.LocalDevice, bool) {
		d, ok := devices[id]
		return d, ok
	}
	portBase := func(model.StreamProtocol) int { return 21000 }

	o := New(storageRoot, lookup, portBase, "stun://stun.l.google.com:19302", pub, nil, "local_devices")
	o.transcoderExec = transcoder
	o.settleDelay = 30 * time.Millisecond
	return o, pub
}

func TestOrchestrator_StartRejectsUnknownDevice(t *testing.T) {
	o, _ := newTestOrchestrator(t, true, map[string]model.LocalDevice{})
	_, err := o.Start(context.Background(), "missing", model.StreamProtoRTSP)
	assert.Error(t, err)
}

func TestOrchestrator_StartRejectsUnsupportedProtocol(t *testing.T) {
	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, _ := newTestOrchestrator(t, true, devices)
	_, err := o.Start(context.Background(), "cam0", model.StreamProtocol("bogus"))
	assert.Error(t, err)
}

func TestOrchestrator_StartSucceedsAndPublishesEvent(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, pub := newTestOrchestrator(t, true, devices)

	url, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	require.NoError(t, err)
	assert.Contains(t, url, "rtsp://localhost:")

	snaps := o.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "cam0", snaps[0].DeviceID)
	assert.Equal(t, url, snaps[0].URL)

	pub.mu.Lock()
	assert.Contains(t, pub.events, "event/local_devices/stream_started")
	pub.mu.Unlock()

	o.Stop(snaps[0].StreamID)
}

func TestOrchestrator_StartIsIdempotentForSameDeviceAndProtocol(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, _ := newTestOrchestrator(t, true, devices)

	url1, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	require.NoError(t, err)
	url2, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	require.NoError(t, err)

	assert.Equal(t, url1, url2)
	assert.Len(t, o.Snapshot(), 1)
}

func TestOrchestrator_StartFailsAndCleansUpWhenTranscoderExitsImmediately(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, _ := newTestOrchestrator(t, false, devices)

	_, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	assert.Error(t, err)
	assert.Empty(t, o.Snapshot())
}

func TestOrchestrator_StopUnknownStreamReturnsFalse(t *testing.T) {
	o, _ := newTestOrchestrator(t, true, map[string]model.LocalDevice{})
	assert.False(t, o.Stop("does-not-exist"))
}

func TestOrchestrator_StopRemovesStreamAndPublishesEvent(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, pub := newTestOrchestrator(t, true, devices)

	url, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	require.NoError(t, err)
	_ = url

	snaps := o.Snapshot()
	require.Len(t, snaps, 1)

	ok := o.Stop(snaps[0].StreamID)
	assert.True(t, ok)
	assert.Empty(t, o.Snapshot())

	pub.mu.Lock()
	assert.Contains(t, pub.events, "event/local_devices/stream_stopped")
	pub.mu.Unlock()
}

func TestOrchestrator_ConcurrentStartsForDifferentDevicesGetDistinctPorts(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{
		"cam0": testDevice("cam0"),
		"cam1": testDevice("cam1"),
	}
	o, _ := newTestOrchestrator(t, true, devices)

	var wg sync.WaitGroup
	urls := make([]string, 2)
	ids := []string{"cam0", "cam1"}
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			url, err := o.Start(context.Background(), id, model.StreamProtoRTSP)
			require.NoError(t, err)
			urls[i] = url
		}(i, id)
	}
	wg.Wait()

	assert.NotEqual(t, urls[0], urls[1])
	assert.Len(t, o.Snapshot(), 2)
}

func TestOrchestrator_ConcurrentStartsForSameDeviceAndProtocolGetSameURL(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, _ := newTestOrchestrator(t, true, devices)

	const n = 8
	var wg sync.WaitGroup
	urls := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			urls[i], errs[i] = o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.NotEmpty(t, urls[i])
		assert.Equal(t, urls[0], urls[i])
	}
	assert.Len(t, o.Snapshot(), 1)
}

func TestOrchestrator_ShutdownStopsEveryStream(t *testing.T) {
	skipUnlessLinux(t)

	devices := map[string]model.LocalDevice{"cam0": testDevice("cam0")}
	o, _ := newTestOrchestrator(t, true, devices)

	_, err := o.Start(context.Background(), "cam0", model.StreamProtoRTSP)
	require.NoError(t, err)

	o.Shutdown()
	assert.Empty(t, o.Snapshot())
}
