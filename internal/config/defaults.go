package config

// defaultConfig is the compiled-in base layer, grounded on
// original_source/src/rtaspi/core/defaults.py's DEFAULT_CONFIG, expanded
// with the streaming/processing sections that its dotted-path keys
// already implied.
func defaultConfig() map[string]any {
	return map[string]any{
		"system": map[string]any{
			"storage_path": "storage",
			"log_level":    "INFO",
		},
		"local_devices": map[string]any{
			"enable_video":       true,
			"enable_audio":       true,
			"auto_start":         false,
			"scan_interval":      60,
			"rtsp_port_start":    8554,
			"rtmp_port_start":    1935,
			"webrtc_port_start":  8080,
		},
		"network_devices": map[string]any{
			"enable":             true,
			"scan_interval":      60,
			"discovery_enabled":  true,
			"discovery_methods":  []any{"onvif", "upnp", "mdns"},
			"rtsp_port_start":    8654,
			"rtmp_port_start":    2935,
			"webrtc_port_start":  9080,
		},
		"streaming": map[string]any{
			"rtsp": map[string]any{
				"port_start":  8554,
				"enable_auth": false,
				"auth_method": "basic",
			},
			"rtmp": map[string]any{
				"port_start":  1935,
				"enable_auth": false,
			},
			"webrtc": map[string]any{
				"port_start":    8080,
				"stun_server":   "stun://stun.l.google.com:19302",
				"turn_server":   "",
				"turn_username": "",
				"turn_password": "",
			},
		},
		"processing": map[string]any{
			"video": map[string]any{
				"default_resolution": "1280x720",
				"default_fps":        30,
				"default_format":     "h264",
			},
			"audio": map[string]any{
				"default_sample_rate": 44100,
				"default_channels":    2,
				"default_format":      "aac",
			},
		},
	}
}

// envVariableMap mirrors original_source's ENV_VARIABLE_MAP: fixed
// environment-variable-name -> dotted-path table, highest-precedence
// layer (spec.md §4.3 item 5).
var envVariableMap = map[string]string{
	"RTASPI_STORAGE_PATH":          "system.storage_path",
	"RTASPI_LOG_LEVEL":             "system.log_level",
	"RTASPI_LOCAL_ENABLE_VIDEO":    "local_devices.enable_video",
	"RTASPI_LOCAL_ENABLE_AUDIO":    "local_devices.enable_audio",
	"RTASPI_LOCAL_SCAN_INTERVAL":   "local_devices.scan_interval",
	"RTASPI_NETWORK_ENABLE":        "network_devices.enable",
	"RTASPI_NETWORK_SCAN_INTERVAL": "network_devices.scan_interval",
	"RTASPI_RTSP_PORT_START":       "streaming.rtsp.port_start",
	"RTASPI_RTMP_PORT_START":       "streaming.rtmp.port_start",
	"RTASPI_WEBRTC_PORT_START":     "streaming.webrtc.port_start",
	"RTASPI_WEBRTC_STUN_SERVER":    "streaming.webrtc.stun_server",
	"RTASPI_WEBRTC_TURN_SERVER":    "streaming.webrtc.turn_server",
}
