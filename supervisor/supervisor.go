// Package supervisor keeps a companion connection alive.
//
// A Supervisor polls its Link on a fixed interval. Each failed poll reopens the
// link and counts a failure; once NumberOfTries consecutive polls have failed
// it escalates (launch the companion through its URL scheme, fall back to the
// installer page) and starts counting again. While connected it sends a
// heartbeat opcode so the companion does not exit for lack of use.
//
// All methods run on the event loop that owns the link.
package supervisor

import (
	"fmt"
	"time"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap"
)

// Phase is the supervisor state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseConnected
	PhaseEscalating
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProbing:
		return "probing"
	case PhaseConnected:
		return "connected"
	case PhaseEscalating:
		return "escalating"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Escalation outcomes reported to the Recorder
const (
	OutcomeLaunched  = "launched"
	OutcomeInstaller = "installer"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Link is the connection being supervised. *transport.Client satisfies it.
type Link interface {
	IsConnected() bool
	Open()
	SendOpcode(op protocol.Opcode) error
}

// Escalator starts the companion application out of band
type Escalator interface {
	// Launch invokes the companion's URL scheme
	Launch() error
	// OpenInstaller opens the installer page
	OpenInstaller() error
	// CompanionRunning reports whether the companion process already exists
	CompanionRunning() (bool, error)
}

// Recorder receives supervisor measurements. metrics.Registry satisfies it.
type Recorder interface {
	PhaseChanged(extension, phase string)
	PollCompleted(extension string, connected bool)
	Escalated(extension, outcome string)
	OpcodeSent(extension, opcode string, err error)
}

// Config is the polling and escalation policy
type Config struct {
	InitialDelay      time.Duration
	PollInterval      time.Duration
	NumberOfTries     int
	EscalationGrace   time.Duration
	HeartbeatInterval time.Duration

	// Heartbeat enables the keep-alive ticker
	Heartbeat bool
	// Escalate enables the launch/installer path
	Escalate bool
}

// DefaultConfig returns the policy used for DLPrecise
func DefaultConfig() Config {
	return Config{
		InitialDelay:      500 * time.Millisecond,
		PollInterval:      3 * time.Second,
		NumberOfTries:     3,
		EscalationGrace:   3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		Heartbeat:         true,
		Escalate:          true,
	}
}

// Validate checks the policy is usable
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.NewInvalidRequestError("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.NumberOfTries < 1 {
		return errors.NewInvalidRequestError("number of tries must be at least 1, got %d", c.NumberOfTries)
	}
	if c.InitialDelay < 0 || c.EscalationGrace < 0 {
		return errors.NewInvalidRequestError("delays must not be negative")
	}
	if c.Heartbeat && c.HeartbeatInterval <= 0 {
		return errors.NewInvalidRequestError("heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	}
	return nil
}

// Supervisor drives one Link
type Supervisor struct {
	name      string
	cfg       Config
	link      Link
	escalator Escalator
	sched     eventloop.Scheduler
	rec       Recorder
	logger    *zap.SugaredLogger

	phase     Phase
	failures  int
	pollTimer eventloop.Timer
	polling   bool
	heartbeat eventloop.Timer
	grace     eventloop.Timer
}

// New creates an idle supervisor. escalator and rec may be nil.
func New(name string, cfg Config, link Link, escalator Escalator, sched eventloop.Scheduler, rec Recorder, log *zap.SugaredLogger) *Supervisor {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Supervisor{
		name:      name,
		cfg:       cfg,
		link:      link,
		escalator: escalator,
		sched:     sched,
		rec:       rec,
		logger:    log,
	}
}

// Phase returns the current phase
func (s *Supervisor) Phase() Phase {
	return s.phase
}

// Failures returns the number of consecutive failed polls since the last
// success or escalation
func (s *Supervisor) Failures() int {
	return s.failures
}

// Config returns the active policy
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Start schedules the first poll after InitialDelay, then polls every PollInterval
func (s *Supervisor) Start() {
	if s.phase != PhaseIdle {
		return
	}
	s.setPhase(PhaseProbing)
	s.logger.Infow("Supervisor started",
		logger.FieldExtension, s.name,
		logger.FieldInterval, s.cfg.PollInterval.String(),
		logger.FieldBudget, s.cfg.NumberOfTries,
	)

	s.pollTimer = s.sched.AfterFunc(s.cfg.InitialDelay, func() {
		s.Poll()
		if s.phase != PhaseIdle {
			s.schedulePolling()
		}
	})
}

func (s *Supervisor) schedulePolling() {
	s.polling = true
	s.pollTimer = s.sched.Every(s.cfg.PollInterval, s.Poll)
}

// Reconfigure swaps the policy. Running poll and heartbeat tickers are
// restarted on their new intervals and the failure count is clamped to the
// new budget.
func (s *Supervisor) Reconfigure(cfg Config) {
	old := s.cfg
	s.cfg = cfg

	if s.phase != PhaseIdle && s.polling && old.PollInterval != cfg.PollInterval {
		s.pollTimer.Stop()
		s.schedulePolling()
	}
	if s.failures >= cfg.NumberOfTries {
		s.failures = cfg.NumberOfTries - 1
	}
	switch {
	case !cfg.Heartbeat:
		s.stopHeartbeat()
	case s.heartbeat != nil && old.HeartbeatInterval != cfg.HeartbeatInterval:
		s.stopHeartbeat()
		s.startHeartbeat()
	}
	s.logger.Infow("Supervisor reconfigured",
		logger.FieldExtension, s.name,
		logger.FieldInterval, cfg.PollInterval.String(),
		logger.FieldBudget, cfg.NumberOfTries,
	)
}

// Poll checks the link once
func (s *Supervisor) Poll() {
	if s.phase == PhaseIdle {
		return
	}

	connected := s.link.IsConnected()
	s.rec.PollCompleted(s.name, connected)

	if connected {
		s.failures = 0
		s.setPhase(PhaseConnected)
		s.startHeartbeat()
		return
	}

	if s.phase == PhaseConnected {
		s.setPhase(PhaseProbing)
	}
	s.link.Open()
	s.failures++
	s.logger.Debugw("Companion not connected",
		logger.FieldExtension, s.name,
		logger.FieldFailures, s.failures,
		logger.FieldBudget, s.cfg.NumberOfTries,
	)

	if s.failures >= s.cfg.NumberOfTries {
		s.failures = 0
		if s.cfg.Escalate && s.escalator != nil && s.grace == nil {
			s.escalate()
		}
	}
}

// escalate runs once per exhausted retry budget
func (s *Supervisor) escalate() {
	s.setPhase(PhaseEscalating)

	running, err := s.escalator.CompanionRunning()
	if err != nil {
		s.logger.Debugw("Companion process probe failed", logger.FieldError, err)
	}
	if running {
		s.logger.Infow("Companion process is running but not accepting connections, skipping launch",
			logger.FieldExtension, s.name,
		)
		s.rec.Escalated(s.name, OutcomeSkipped)
		s.setPhase(PhaseProbing)
		return
	}

	if err := s.escalator.Launch(); err != nil {
		s.logger.Warnw("Companion launch failed, opening installer",
			logger.FieldExtension, s.name,
			logger.FieldError, err,
		)
		s.openInstaller()
		s.setPhase(PhaseProbing)
		return
	}
	s.rec.Escalated(s.name, OutcomeLaunched)

	s.grace = s.sched.AfterFunc(s.cfg.EscalationGrace, func() {
		s.grace = nil
		if s.phase == PhaseIdle {
			return
		}
		if !s.link.IsConnected() {
			s.openInstaller()
		}
		if s.phase == PhaseEscalating {
			s.setPhase(PhaseProbing)
		}
	})
}

func (s *Supervisor) openInstaller() {
	if err := s.escalator.OpenInstaller(); err != nil {
		s.logger.Errorw("Failed to open installer page",
			logger.FieldExtension, s.name,
			logger.FieldError, err,
		)
		s.rec.Escalated(s.name, OutcomeFailed)
		return
	}
	s.rec.Escalated(s.name, OutcomeInstaller)
}

// startHeartbeat starts the keep-alive ticker the first time the link is seen connected
func (s *Supervisor) startHeartbeat() {
	if !s.cfg.Heartbeat || s.heartbeat != nil {
		return
	}
	s.heartbeat = s.sched.Every(s.cfg.HeartbeatInterval, s.Beat)
	s.logger.Debugw("Heartbeat started",
		logger.FieldExtension, s.name,
		logger.FieldInterval, s.cfg.HeartbeatInterval.String(),
	)
}

func (s *Supervisor) stopHeartbeat() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
}

// Beat sends one heartbeat opcode if the link is connected
func (s *Supervisor) Beat() {
	if !s.link.IsConnected() {
		return
	}
	s.send(protocol.OpHeartbeat)
}

// Stop is the teardown path: send Close if connected, then cancel every timer
func (s *Supervisor) Stop() {
	if s.phase == PhaseIdle {
		return
	}
	if s.link.IsConnected() {
		s.send(protocol.OpClose)
	}

	s.stopHeartbeat()
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
	s.polling = false
	s.failures = 0
	s.setPhase(PhaseIdle)
	s.logger.Infow("Supervisor stopped", logger.FieldExtension, s.name)
}

func (s *Supervisor) send(op protocol.Opcode) {
	err := s.link.SendOpcode(op)
	s.rec.OpcodeSent(s.name, op.String(), err)
	if err != nil {
		s.logger.Warnw("Failed to send opcode",
			logger.FieldExtension, s.name,
			logger.FieldOpcode, op.String(),
			logger.FieldError, err,
		)
	}
}

func (s *Supervisor) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.logger.Debugw("Supervisor phase change",
		logger.FieldExtension, s.name,
		"from", s.phase.String(),
		logger.FieldPhase, p.String(),
	)
	s.phase = p
	s.rec.PhaseChanged(s.name, p.String())
}

type nopRecorder struct{}

func (nopRecorder) PhaseChanged(string, string)      {}
func (nopRecorder) PollCompleted(string, bool)       {}
func (nopRecorder) Escalated(string, string)         {}
func (nopRecorder) OpcodeSent(string, string, error) {}
