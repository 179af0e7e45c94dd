package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"offsync/internal/logging"
)

// netlinkWatcher listens for network interface uevents and asks the monitor
// for an immediate probe, so a cable plug or Wi-Fi association is noticed
// before the next scheduled probe.
type netlinkWatcher struct {
	logger  *slog.Logger
	trigger func()

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newNetlinkWatcher(logger *slog.Logger, trigger func()) *netlinkWatcher {
	return &netlinkWatcher{
		logger:  logging.NewComponentLogger(logger, "netlink-watcher"),
		trigger: trigger,
	}
}

// Start connects to the netlink socket. Failure is logged and non-fatal.
func (w *netlinkWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("failed to connect to netlink socket; connectivity will rely on scheduled probes",
			logging.Error(err),
			logging.EventType("netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "interface changes detected at the next probe interval"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, conn, quit)

	w.logger.Info("netlink watcher started",
		logging.EventType("netlink_watcher_started"),
	)
	return nil
}

// Stop closes the netlink socket.
func (w *netlinkWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("netlink watcher stopped",
		logging.EventType("netlink_watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *netlinkWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *netlinkWatcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			w.logger.Warn("netlink watcher error",
				logging.Error(err),
				logging.EventType("netlink_watcher_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "interface changes detected at the next probe interval"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=net with ACTION=add|remove|change|move.
func buildMatcher() netlink.Matcher {
	action := "add|remove|change|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

func (w *netlinkWatcher) handleEvent(uevent netlink.UEvent) {
	w.logger.Debug("network interface event",
		logging.String("action", string(uevent.Action)),
		logging.String("interface", uevent.Env["INTERFACE"]),
	)
	if w.trigger != nil {
		w.trigger()
	}
}
