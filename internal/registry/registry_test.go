package registry

import (
	"testing"

	"github.com/rtaspi/rtaspi-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_InsertGetRemove(t *testing.T) {
	r := New[model.LocalDevice]()

	dev := model.LocalDevice{Device: model.Device{DeviceID: "video0", Type: model.DeviceTypeVideo}}
	r.Insert(dev.DeviceID, dev)

	got, ok := r.Get("video0")
	require.True(t, ok)
	assert.Equal(t, model.DeviceTypeVideo, got.Type)

	r.Remove("video0")
	_, ok = r.Get("video0")
	assert.False(t, ok)
}

func TestRegistry_ListReturnsAllItems(t *testing.T) {
	r := New[model.LocalDevice]()
	r.Insert("a", model.LocalDevice{Device: model.Device{DeviceID: "a"}})
	r.Insert("b", model.LocalDevice{Device: model.Device{DeviceID: "b"}})

	assert.Len(t, r.List(), 2)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_UpdateStatusMutatesStoredCopy(t *testing.T) {
	r := New[model.LocalDevice]()
	r.Insert("a", model.LocalDevice{Device: model.Device{DeviceID: "a", Status: model.StatusUnknown}})

	ok := r.UpdateStatus("a", func(d model.LocalDevice) model.LocalDevice {
		d.Status = model.StatusOnline
		return d
	})
	require.True(t, ok)

	got, _ := r.Get("a")
	assert.Equal(t, model.StatusOnline, got.Status)
}

func TestRegistry_UpdateStatusReportsMissing(t *testing.T) {
	r := New[model.LocalDevice]()
	ok := r.UpdateStatus("missing", func(d model.LocalDevice) model.LocalDevice { return d })
	assert.False(t, ok)
}

func TestRegistry_ReplaceDiscardsStaleEntries(t *testing.T) {
	r := New[model.LocalDevice]()
	r.Insert("stale", model.LocalDevice{Device: model.Device{DeviceID: "stale"}})

	r.Replace(map[string]model.LocalDevice{
		"fresh": {Device: model.Device{DeviceID: "fresh"}},
	})

	_, ok := r.Get("stale")
	assert.False(t, ok)
	_, ok = r.Get("fresh")
	assert.True(t, ok)
}
