package localdevices

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/model"
)

// LinuxScanner enumerates /dev/video* and ALSA capture cards, grounded
// on original_source's scanners/linux_scanner.py. Video devices come
// from the /dev/video* glob; it shells out to v4l2-ctl for their
// metadata and degrades to a bare entry (system path only) if that tool
// is unavailable or its output doesn't parse, matching the original's
// "add device even if parsing fails" behavior. Audio devices come only
// from parsing `arecord -l`; without arecord no audio device is
// reported.
type LinuxScanner struct{}

var (
	v4l2CardTypeRe = regexp.MustCompile(`Card type\s*:\s*(.+)`)
	v4l2FormatRe   = regexp.MustCompile(`PixelFormat\s*:\s*'(\w+)'`)
	v4l2SizeRe     = regexp.MustCompile(`Size: Discrete (\d+x\d+)`)
)

func (LinuxScanner) ScanVideoDevices() (map[string]model.LocalDevice, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.LocalDevice, len(paths))
	for _, path := range paths {
		deviceID := fmt.Sprintf("video:%s", path)
		name := fmt.Sprintf("Camera %s", path)
		var formats, resolutions []string

		if info, err := exec.Command("v4l2-ctl", "--device", path, "--all").CombinedOutput(); err == nil {
			if m := v4l2CardTypeRe.FindSubmatch(info); m != nil {
				name = string(m[1])
			}
		}
		if formatsOut, err := exec.Command("v4l2-ctl", "--device", path, "--list-formats-ext").CombinedOutput(); err == nil {
			for _, m := range v4l2FormatRe.FindAllSubmatch(formatsOut, -1) {
				formats = append(formats, string(m[1]))
			}
			for _, m := range v4l2SizeRe.FindAllSubmatch(formatsOut, -1) {
				resolutions = append(resolutions, string(m[1]))
			}
		}

		out[deviceID] = model.LocalDevice{
			Device: model.Device{
				DeviceID:    deviceID,
				Name:        name,
				Type:        model.DeviceTypeVideo,
				Status:      model.StatusOnline,
				LastChecked: time.Now(),
			},
			SystemPath:  path,
			Driver:      model.DriverV4L2,
			Formats:     formats,
			Resolutions: resolutions,
		}
	}
	return out, nil
}

func (LinuxScanner) ScanAudioDevices() (map[string]model.LocalDevice, error) {
	cardsOut, err := exec.Command("arecord", "-l").CombinedOutput()
	if err != nil {
		// arecord missing or no capture devices: an empty result is not
		// an error, matching the scan loop's "replace wholesale" step
		// tolerating zero devices.
		return map[string]model.LocalDevice{}, nil
	}

	cardRe := regexp.MustCompile(`card (\d+): (\S+) \[(.+?)\], device (\d+): (.+?) \[(.+?)\]`)
	out := make(map[string]model.LocalDevice)
	for _, m := range cardRe.FindAllSubmatch(cardsOut, -1) {
		card, device := string(m[1]), string(m[4])
		systemPath := fmt.Sprintf("hw:%s,%s", card, device)
		deviceID := fmt.Sprintf("audio:%s", systemPath)
		out[deviceID] = model.LocalDevice{
			Device: model.Device{
				DeviceID:    deviceID,
				Name:        string(m[6]),
				Type:        model.DeviceTypeAudio,
				Status:      model.StatusOnline,
				LastChecked: time.Now(),
			},
			SystemPath: systemPath,
			Driver:     model.DriverALSA,
		}
	}
	return out, nil
}
