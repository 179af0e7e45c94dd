package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"offsync/internal/config"
	"offsync/internal/logging"
)

// State is the published connectivity state.
type State string

const (
	StateUnknown      State = "unknown"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Listener is invoked once per regained transition. ctx is cancelled when
// the monitor stops.
type Listener func(ctx context.Context)

// Options configures a Monitor.
type Options struct {
	// Prober is polled every Interval; nil disables the probe loop so state
	// only changes through Report.
	Prober   Prober
	Interval time.Duration
	Timeout  time.Duration
	// Debounce is how long a connected observation must hold before it is
	// published.
	Debounce     time.Duration
	WatchNetlink bool
	Logger       *slog.Logger
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State        State     `json:"state"`
	Observed     State     `json:"observed"`
	Since        time.Time `json:"since"`
	LastProbeErr string    `json:"last_probe_error,omitempty"`
	Regained     int       `json:"regained"`
}

// Monitor publishes connectivity transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	debounce time.Duration
	logger   *slog.Logger

	mu           sync.Mutex
	observed     State
	stable       State
	since        time.Time
	lastProbeErr string
	regained     int
	gen          uint64
	timer        *time.Timer
	listeners    []Listener
	baseCtx      context.Context
	cancel       context.CancelFunc
	running      bool
	done         chan struct{}
	netlink      *netlinkWatcher
	notifyWG     sync.WaitGroup

	probeNow chan struct{}
}

// New constructs a Monitor in the unknown state.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := logging.NewComponentLogger(opts.Logger, "connectivity")
	m := &Monitor{
		prober:   opts.Prober,
		interval: interval,
		timeout:  timeout,
		debounce: opts.Debounce,
		logger:   logger,
		observed: StateUnknown,
		stable:   StateUnknown,
		since:    time.Now(),
		baseCtx:  context.Background(),
		probeNow: make(chan struct{}, 1),
	}
	if opts.WatchNetlink {
		m.netlink = newNetlinkWatcher(logger, m.TriggerProbe)
	}
	return m
}

// NewFromConfig builds a Monitor using the configured probe target. Without a
// probe URL or address the monitor relies on manual reports.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Monitor {
	opts := Options{Logger: logger}
	if cfg == nil {
		return New(opts)
	}
	opts.Interval = cfg.ProbeInterval()
	opts.Timeout = cfg.ProbeTimeout()
	opts.Debounce = cfg.Debounce()
	opts.WatchNetlink = cfg.Connectivity.WatchNetlink
	opts.Prober = ProberFromConfig(cfg)
	return New(opts)
}

// ProberFromConfig returns the configured prober, or nil when neither a probe
// URL nor a probe address is set.
func ProberFromConfig(cfg *config.Config) Prober {
	if cfg == nil {
		return nil
	}
	switch {
	case strings.TrimSpace(cfg.Connectivity.ProbeURL) != "":
		return HTTPProber{
			URL:    cfg.Connectivity.ProbeURL,
			Client: &http.Client{Timeout: cfg.ProbeTimeout()},
		}
	case strings.TrimSpace(cfg.Connectivity.ProbeAddress) != "":
		return TCPProber{Address: cfg.Connectivity.ProbeAddress, Timeout: cfg.ProbeTimeout()}
	}
	return nil
}

// State returns the published state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stable
}

// Connected reports whether the published state is connected.
func (m *Monitor) Connected() bool {
	return m.State() == StateConnected
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:        m.stable,
		Observed:     m.observed,
		Since:        m.since,
		LastProbeErr: m.lastProbeErr,
		Regained:     m.regained,
	}
}

// Subscribe registers fn for regained notifications. Each notification runs
// on its own goroutine.
func (m *Monitor) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Report records an observation. Disconnects are published immediately;
// connects are published after the debounce window.
func (m *Monitor) Report(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := StateDisconnected
	if connected {
		next = StateConnected
	}
	if next == m.observed {
		return
	}
	m.observed = next
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if next == StateDisconnected {
		m.publishLocked(StateDisconnected)
		return
	}
	if m.debounce <= 0 {
		m.publishLocked(StateConnected)
		return
	}
	gen := m.gen
	m.timer = time.AfterFunc(m.debounce, func() { m.settle(gen) })
}

func (m *Monitor) settle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.observed != StateConnected {
		return
	}
	m.timer = nil
	m.publishLocked(StateConnected)
}

func (m *Monitor) publishLocked(next State) {
	if m.stable == next {
		return
	}
	previous := m.stable
	m.stable = next
	m.since = time.Now()

	m.logger.Info("connectivity changed",
		logging.String("from", string(previous)),
		logging.String("to", string(next)),
		logging.EventType("connectivity_changed"),
	)

	if next != StateConnected {
		return
	}
	m.regained++
	ctx := m.baseCtx
	for _, listener := range m.listeners {
		m.notifyWG.Add(1)
		go func(fn Listener) {
			defer m.notifyWG.Done()
			fn(ctx)
		}(listener)
	}
}

// TriggerProbe requests an out-of-band probe. It never blocks.
func (m *Monitor) TriggerProbe() {
	select {
	case m.probeNow <- struct{}{}:
	default:
	}
}

// Start launches the probe loop and, when enabled, the netlink watcher.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.baseCtx = runCtx
	m.cancel = cancel
	m.running = true
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	if err := m.netlink.Start(runCtx); err != nil {
		return err
	}

	if m.prober == nil {
		close(done)
		m.logger.Info("connectivity probing disabled; relying on manual reports",
			logging.EventType("connectivity_manual"),
		)
		return nil
	}
	go m.run(runCtx, done)
	return nil
}

// Stop halts probing and waits for in-flight notifications to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.mu.Unlock()

	m.netlink.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.notifyWG.Wait()
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		case <-m.probeNow:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	if err != nil {
		m.lastProbeErr = err.Error()
	} else {
		m.lastProbeErr = ""
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("connectivity probe failed", logging.Error(err))
	}
	m.Report(err == nil)
}
