// Package netstore persists the network device registry to a JSON
// document on disk, grounded on original_source's
// device_managers/network_devices.py (_load_devices/_save_devices),
// with one deliberate behavior change named in spec.md §4.5: credentials
// are never written and never restored (the original persisted them in
// plaintext, which spec.md's REDESIGN FLAGS reject).
package netstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/model"
)

const devicesFileName = "network_devices.json"

// record is the on-disk shape of a single network device. It
// deliberately has no username/password fields.
type record struct {
	DeviceID string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Status   string            `json:"status"`
	IP       string            `json:"ip"`
	Port     int               `json:"port"`
	Protocol string            `json:"protocol"`
	Streams  map[string]string `json:"streams"`
}

// Store reads and writes the network device registry under storagePath.
type Store struct {
	path string
	log  *logging.Logger
}

// New returns a Store backed by storagePath/network_devices.json.
func New(storagePath string, log *logging.Logger) *Store {
	return &Store{path: filepath.Join(storagePath, devicesFileName), log: log}
}

// Load reads the devices file and returns the devices it contains,
// keyed by device_id. A missing file yields an empty map, not an error.
// A malformed individual record is skipped (logged) without aborting
// the load of the rest (spec.md §4.5).
func (s *Store) Load() (map[string]model.NetworkDevice, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]model.NetworkDevice{}, nil
		}
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("netstore: parse %s: %w", s.path, err)
	}

	out := make(map[string]model.NetworkDevice, len(raws))
	for _, raw := range raws {
		var r record
		err := json.Unmarshal(raw, &r)
		var dev model.NetworkDevice
		if err == nil {
			dev, err = toDevice(r)
		}
		if err != nil {
			if s.log != nil {
				s.log.Errorf("netstore: skipping malformed record %q: %v", r.DeviceID, err)
			}
			continue
		}
		out[dev.DeviceID] = dev
	}
	return out, nil
}

func toDevice(r record) (model.NetworkDevice, error) {
	if r.DeviceID == "" {
		return model.NetworkDevice{}, fmt.Errorf("missing device id")
	}
	return model.NetworkDevice{
		Device: model.Device{
			DeviceID: r.DeviceID,
			Name:     r.Name,
			Type:     model.DeviceType(r.Type),
			Status:   model.DeviceStatus(r.Status),
		},
		IP:       r.IP,
		Port:     r.Port,
		Protocol: model.NetworkProtocol(r.Protocol),
		Streams:  r.Streams,
		// Credentials is deliberately left zero-valued.
	}, nil
}

// Save serializes devices to the devices file, creating the storage
// directory if needed. Credentials are never written.
func (s *Store) Save(devices map[string]model.NetworkDevice) error {
	records := make([]record, 0, len(devices))
	for _, d := range devices {
		records = append(records, record{
			DeviceID: d.DeviceID,
			Name:     d.Name,
			Type:     string(d.Type),
			Status:   string(d.Status),
			IP:       d.IP,
			Port:     d.Port,
			Protocol: string(d.Protocol),
			Streams:  d.Streams,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
