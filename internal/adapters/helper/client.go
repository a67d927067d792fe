package helper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"
	"time"

	perr "github.com/AKSizov/bluebubbles-server/internal/platform/errors"
	"github.com/AKSizov/bluebubbles-server/internal/platform/logger"
	"github.com/AKSizov/bluebubbles-server/internal/platform/telemetry"
	"github.com/AKSizov/bluebubbles-server/internal/services/decode/domain"
)

// Config holds the helper process settings
type Config struct {
	// Path is the helper executable; Args are passed verbatim
	Path string
	Args []string
	// RestartDelay is the pause before respawning an exited helper
	RestartDelay time.Duration
	// ScanBuffer caps one stdout record; decoded bodies can be large
	ScanBuffer int
}

func (c *Config) defaults() {
	if c.RestartDelay <= 0 {
		c.RestartDelay = time.Second
	}
	if c.ScanBuffer <= 0 {
		c.ScanBuffer = 16 << 20
	}
}

// Client owns exactly one helper subprocess and the newline-delimited JSON
// protocol on its stdio. The process is a permanent background dependency:
// any exit triggers a respawn until Stop. Implements domain.HelperPort
type Client struct {
	cfg     Config
	log     logger.Logger
	metrics *telemetry.Metrics

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	running    bool
	supervised bool          // set once Start hands the process to supervise
	ready      chan struct{} // closed while a process is up; replaced on exit

	wmu sync.Mutex // serializes stdin writes

	pmu     sync.Mutex
	pending map[string]chan []wireResponseEntry

	stopCh chan struct{}
	doneCh chan struct{}
	stop   sync.Once
}

// New builds a client for the helper at cfg.Path. Call Start before Send
func New(cfg Config, log *logger.Logger, m *telemetry.Metrics) *Client {
	cfg.defaults()
	return &Client{
		cfg:     cfg,
		log:     log.With().Str("component", "helper").Logger(),
		metrics: m,
		ready:   make(chan struct{}),
		pending: make(map[string]chan []wireResponseEntry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start spawns the helper and begins supervising it. The first spawn is
// synchronous so a bad executable path fails loudly at boot
func (c *Client) Start() error {
	cmd, err := c.spawn()
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeHelperFailure, "start helper")
	}
	c.mu.Lock()
	c.supervised = true
	c.mu.Unlock()
	go c.supervise(cmd)
	return nil
}

// Stop kills the helper and ends supervision. The correlation table is
// discarded without resolving waiters; callers flush the batch layer first
func (c *Client) Stop() {
	c.stop.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		cmd, supervised := c.cmd, c.supervised
		c.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		// doneCh only closes when supervise exits; skip the wait when
		// Start never handed it a process
		if supervised {
			<-c.doneCh
		}

		c.pmu.Lock()
		c.pending = make(map[string]chan []wireResponseEntry)
		c.pmu.Unlock()
	})
}

// Restart kills the current process; the supervisor respawns it. In-flight
// correlation entries are left to time out rather than failed proactively
func (c *Client) Restart() {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Send writes one bulk request record and blocks until the matching
// response record arrives, the timeout fires, or ctx is done. Requests may
// be outstanding concurrently; answers are matched by the request id
func (c *Client) Send(ctx context.Context, requestID string, entries []domain.RequestEntry, timeout time.Duration) ([]domain.ResponseEntry, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// a crashed helper queues this request against the respawned instance
	if err := c.waitReady(ctx, timer.C); err != nil {
		c.metrics.HelperRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	line, err := encodeRequest(requestID, entries)
	if err != nil {
		c.metrics.HelperRequests.WithLabelValues("error").Inc()
		return nil, perr.Wrap(err, perr.ErrorCodeHelperFailure, "encode helper request")
	}

	ch := make(chan []wireResponseEntry, 1)
	c.pmu.Lock()
	c.pending[requestID] = ch
	c.pmu.Unlock()

	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		c.unregister(requestID)
		c.metrics.HelperRequests.WithLabelValues("error").Inc()
		return nil, perr.HelperFailuref("helper not running")
	}

	c.wmu.Lock()
	_, werr := stdin.Write(append(line, '\n'))
	c.wmu.Unlock()
	if werr != nil {
		c.unregister(requestID)
		c.metrics.HelperRequests.WithLabelValues("error").Inc()
		return nil, perr.Wrap(werr, perr.ErrorCodeHelperFailure, "write to helper")
	}

	select {
	case data := <-ch:
		c.metrics.HelperRequests.WithLabelValues("ok").Inc()
		return toEntries(data), nil
	case <-timer.C:
		c.unregister(requestID)
		c.metrics.HelperRequests.WithLabelValues("timeout").Inc()
		return nil, perr.Timeoutf("no helper response for request %s within %s", requestID, timeout)
	case <-ctx.Done():
		c.unregister(requestID)
		c.metrics.HelperRequests.WithLabelValues("error").Inc()
		return nil, ctx.Err()
	}
}

// waitReady blocks until a helper process is up or one of the limits fires
func (c *Client) waitReady(ctx context.Context, timeout <-chan time.Time) error {
	for {
		c.mu.Lock()
		running, ready := c.running, c.ready
		c.mu.Unlock()
		if running {
			return nil
		}
		select {
		case <-ready:
		case <-timeout:
			return perr.Timeoutf("helper not available within request timeout")
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return perr.HelperFailuref("helper client stopped")
		}
	}
}

// spawn starts one helper process and wires its streams
func (c *Client) spawn() (*exec.Cmd, error) {
	cmd := exec.Command(c.cfg.Path, c.cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go c.readOutput(cmd, stdout)
	go c.readStderr(stderr)

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.running = true
	close(c.ready)
	c.mu.Unlock()

	c.log.Info().Str("path", c.cfg.Path).Int("pid", cmd.Process.Pid).Msg("helper started")
	return cmd, nil
}

// supervise waits on the current process and respawns it until Stop
func (c *Client) supervise(cmd *exec.Cmd) {
	defer close(c.doneCh)
	for {
		err := cmd.Wait()
		c.teardown()

		select {
		case <-c.stopCh:
			c.log.Info().Msg("helper stopped")
			return
		default:
		}

		c.log.Warn().Err(err).Msg("helper exited; respawning")
		c.metrics.HelperRestarts.Inc()

		for {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.cfg.RestartDelay):
			}
			next, serr := c.spawn()
			if serr == nil {
				cmd = next
				break
			}
			c.log.Error().Err(serr).Msg("helper respawn failed; retrying")
		}
	}
}

// teardown marks the process gone and re-arms the readiness gate
func (c *Client) teardown() {
	c.mu.Lock()
	c.cmd = nil
	c.stdin = nil
	c.running = false
	c.ready = make(chan struct{})
	c.mu.Unlock()
}

// readOutput parses newline-delimited response records and routes them to
// waiters by correlation id. Malformed lines and answers for evicted ids
// are discarded. A scan error (a record past ScanBuffer) poisons the
// stream, so the process is killed and the supervisor brings up a fresh one
func (c *Client) readOutput(cmd *exec.Cmd, stdout io.Reader) {
	buf := make([]byte, 64*1024)
	if c.cfg.ScanBuffer < len(buf) {
		buf = make([]byte, c.cfg.ScanBuffer)
	}
	sc := bufio.NewScanner(stdout)
	sc.Buffer(buf, c.cfg.ScanBuffer)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp wireResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.metrics.ProtocolDrops.Inc()
			c.log.Warn().Err(err).Msg("malformed helper record")
			continue
		}
		if resp.ID == "" {
			c.metrics.ProtocolDrops.Inc()
			continue
		}

		c.pmu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pmu.Unlock()
		if !ok {
			// late answer for a timed-out or flushed request
			c.metrics.ProtocolDrops.Inc()
			continue
		}
		ch <- resp.Data
	}
	if err := sc.Err(); err != nil {
		c.metrics.ProtocolDrops.Inc()
		c.log.Error().Err(err).Msg("helper stdout unreadable; killing process")
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// readStderr forwards helper diagnostics to the log, never to a waiter
func (c *Client) readStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			c.log.Warn().Str("stream", "stderr").Msg(string(line))
		}
	}
}

// unregister drops a correlation entry on any terminal path
func (c *Client) unregister(requestID string) {
	c.pmu.Lock()
	delete(c.pending, requestID)
	c.pmu.Unlock()
}
