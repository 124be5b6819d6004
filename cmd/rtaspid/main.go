// Command rtaspid is the rtaspi-core daemon: it loads configuration,
// wires the broker, device managers, and stream orchestrator together
// under a Supervisor, and runs until an interrupt or termination
// signal arrives, grounded on redb-open's
// cmd/supervisor/cmd/main.go flag-parsing and signal-handling shape.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rtaspi/rtaspi-core/internal/busclient"
	"github.com/rtaspi/rtaspi-core/internal/config"
	"github.com/rtaspi/rtaspi-core/internal/localdevices"
	"github.com/rtaspi/rtaspi-core/internal/logging"
	"github.com/rtaspi/rtaspi-core/internal/networkdevices"
	"github.com/rtaspi/rtaspi-core/internal/supervisor"
)

var (
	systemConfigFlag  = flag.String("system-config", "", "System-wide configuration file path (defaults to /etc/rtaspi/config.yaml)")
	userConfigFlag    = flag.String("user-config", "", "User configuration file path (defaults to ~/.config/rtaspi/config.yaml)")
	projectConfigFlag = flag.String("project-config", "", "Project configuration file path (defaults to .rtaspi/config.yaml)")
	quietFlag         = flag.Bool("quiet", false, "Suppress log output to stdout")
	versionFlag       = flag.Bool("version", false, "Show version information and exit")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("rtaspid %s\n", version)
		os.Exit(0)
	}

	log := logging.New("rtaspid")
	log.SetQuiet(*quietFlag)

	cfg, err := config.Load(*systemConfigFlag, *userConfigFlag, *projectConfigFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	stop, err := cfg.Watch(func(*config.Store) {
		log.Infof("project configuration changed on disk")
	})
	if err != nil {
		log.Warnf("config file watch disabled: %v", err)
	} else {
		defer stop()
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize supervisor: %v\n", err)
		os.Exit(1)
	}

	storageRoot := cfg.GetString("system.storage_path", "storage")
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create storage directory %q: %v\n", storageRoot, err)
		os.Exit(1)
	}

	if cfg.GetBool("local_devices.enable", true) {
		localBus, err := busclient.New("local_devices", sup.Broker(), log, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create local_devices bus client: %v\n", err)
			os.Exit(1)
		}
		localMgr := localdevices.New(localBus, cfg, log, localdevices.LinuxScanner{}, storageRoot)
		sup.Register(localMgr)
	}

	if cfg.GetBool("network_devices.enable", true) {
		networkBus, err := busclient.New("network_devices", sup.Broker(), log, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create network_devices bus client: %v\n", err)
			os.Exit(1)
		}
		networkMgr, err := networkdevices.New(networkBus, cfg, log, networkdevices.NewTCPMonitor(), storageRoot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize network_devices manager: %v\n", err)
			os.Exit(1)
		}
		sup.Register(networkMgr)
	}

	log.Infof("rtaspid %s starting (storage=%s)", version, storageRoot)
	sup.Run()
	log.Infof("rtaspid stopped")
}
