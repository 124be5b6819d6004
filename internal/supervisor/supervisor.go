// Package supervisor owns the broker, the configuration store, and the
// set of device managers, and coordinates their startup/shutdown,
// grounded on redb-open's cmd/supervisor/cmd/main.go Supervisor type
// (signal handling, ordered service startup, waitgroup-bounded drain on
// shutdown) adapted to this module's single-process, in-memory scope.
package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rtaspi/rtaspi-core/internal/broker"
	"github.com/rtaspi/rtaspi-core/internal/busclient"
	"github.com/rtaspi/rtaspi-core/internal/config"
	"github.com/rtaspi/rtaspi-core/internal/logging"
)

// Manager is anything the Supervisor starts and stops in lockstep: the
// Local Device Manager and the Network Device Manager both satisfy it.
type Manager interface {
	Start()
	Stop()
}

const statusTopic = "system/status"

// Supervisor owns the broker, configuration store, and every registered
// manager, and publishes system/status transitions.
type Supervisor struct {
	broker   *broker.Broker
	cfg      *config.Store
	log      *logging.Logger
	bus      *busclient.Client
	managers []Manager

	mu      sync.Mutex
	started bool
	stopped bool
}

// New constructs a Supervisor wired to its own broker and bus client.
// Managers must be appended via Register before Start.
func New(cfg *config.Store, log *logging.Logger) (*Supervisor, error) {
	b := broker.New()
	bus, err := busclient.New("supervisor", b, log, 0)
	if err != nil {
		return nil, err
	}
	return &Supervisor{broker: b, cfg: cfg, log: log, bus: bus}, nil
}

// Broker exposes the owned broker so managers constructed by the caller
// can be wired to the same bus before being registered.
func (s *Supervisor) Broker() *broker.Broker { return s.broker }

// Register adds a manager to be started by Start and stopped by Stop,
// in registration order. Call before Start.
func (s *Supervisor) Register(m Manager) {
	s.managers = append(s.managers, m)
}

// Start starts every registered manager in registration order and
// publishes system/status {started}. Idempotent: a second call is a
// no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, m := range s.managers {
		m.Start()
	}

	s.log.Infof("supervisor started with %d manager(s)", len(s.managers))
	s.bus.Publish(statusTopic, map[string]any{
		"status":    "started",
		"timestamp": time.Now(),
	})
}

// Stop publishes system/status {stopped}, then stops every registered
// manager in reverse registration order (newest-started stops first),
// then closes the supervisor's own bus client. Idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.started {
		return
	}
	s.stopped = true

	s.bus.Publish(statusTopic, map[string]any{
		"status":    "stopped",
		"timestamp": time.Now(),
	})

	for i := len(s.managers) - 1; i >= 0; i-- {
		s.managers[i].Stop()
	}

	s.log.Infof("supervisor stopped")
	s.bus.Close()
}

// Run starts every manager and blocks until an interrupt or termination
// signal arrives, then stops everything and returns.
func (s *Supervisor) Run() {
	s.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	s.Stop()
}
