package launcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

var nginxConfigTemplate = template.Must(template.New("nginx.conf").Parse(`worker_processes 1;
events {
    worker_connections 1024;
}
rtmp {
    server {
        listen {{.Port}};
        chunk_size 4096;
        application live {
            live on;
            record off;
        }
    }
}
`))

// WriteNginxConfig renders an nginx-rtmp config bound to port into
// outputDir/nginx.conf, grounded on
// original_source/streaming/rtmp.py's _generate_nginx_config, and
// returns the written path.
func WriteNginxConfig(outputDir string, port int) (string, error) {
	var buf bytes.Buffer
	if err := nginxConfigTemplate.Execute(&buf, struct{ Port int }{port}); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, "nginx.conf")
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}

// WebRTCConfig is the JSON document written into a WebRTC stream's
// output directory next to webrtc.html, matching original_source's
// webrtc_config.json. No process launched by this module reads it.
type WebRTCConfig struct {
	Port         int    `json:"port"`
	StreamID     string `json:"stream_id"`
	DeviceID     string `json:"device_id"`
	DeviceType   string `json:"device_type"`
	STUNServer   string `json:"stun_server"`
	TURNServer   string `json:"turn_server"`
	TURNUsername string `json:"turn_username"`
	TURNPassword string `json:"turn_password"`
}

// WriteWebRTCConfig writes cfg as outputDir/webrtc_config.json.
func WriteWebRTCConfig(outputDir string, cfg WebRTCConfig) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, "webrtc_config.json")
	return path, os.WriteFile(path, data, 0o644)
}

var webrtcHTMLTemplate = template.Must(template.New("webrtc.html").Parse(`<!DOCTYPE html>
<html>
<head><title>rtaspi WebRTC stream {{html .StreamID}}</title></head>
<body>
<video id="stream" autoplay playsinline></video>
<script>
  const streamId = {{.StreamIDJSON}};
  const stunServer = {{.STUNServerJSON}};
  const pc = new RTCPeerConnection({iceServers: [{urls: stunServer}]});
  pc.ontrack = (event) => { document.getElementById("stream").srcObject = event.streams[0]; };
  fetch("/offer?stream=" + streamId).then((r) => r.json()).then(async (offer) => {
    await pc.setRemoteDescription(offer);
    const answer = await pc.createAnswer();
    await pc.setLocalDescription(answer);
    await fetch("/answer?stream=" + streamId, {method: "POST", body: JSON.stringify(answer)});
  });
</script>
</body>
</html>
`))

// WriteWebRTCHTML renders outputDir/webrtc.html for streamID, bound to
// the given STUN server, matching original_source's WebRTCUI.generate_client_page.
func WriteWebRTCHTML(outputDir, streamID, stunServer string) (string, error) {
	streamIDJSON, err := json.Marshal(streamID)
	if err != nil {
		return "", err
	}
	stunServerJSON, err := json.Marshal(stunServer)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	data := struct {
		StreamID       string
		StreamIDJSON   string
		STUNServerJSON string
	}{StreamID: streamID, StreamIDJSON: string(streamIDJSON), STUNServerJSON: string(stunServerJSON)}
	if err := webrtcHTMLTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, "webrtc.html")
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}

// HTTPServerArgs returns the ancillary HTTP server's argument vector for
// serving outputDir on port, used by the WebRTC ancillary process.
func HTTPServerArgs(outputDir string, port int) []string {
	return []string{"-m", "http.server", fmt.Sprint(port), "--directory", outputDir}
}
