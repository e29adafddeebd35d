package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap/zaptest"
)

type fakeLink struct {
	connected bool
	opens     int
	sent      []protocol.Opcode
}

func (l *fakeLink) IsConnected() bool { return l.connected }
func (l *fakeLink) Open()             { l.opens++ }

func (l *fakeLink) SendOpcode(op protocol.Opcode) error {
	if !l.connected {
		return errors.ErrNotConnected
	}
	l.sent = append(l.sent, op)
	return nil
}

func (l *fakeLink) count(op protocol.Opcode) int {
	n := 0
	for _, s := range l.sent {
		if s == op {
			n++
		}
	}
	return n
}

type fakeEscalator struct {
	launches   int
	installers int
	running    bool
	launchErr  error
}

func (e *fakeEscalator) Launch() error {
	e.launches++
	return e.launchErr
}

func (e *fakeEscalator) OpenInstaller() error {
	e.installers++
	return nil
}

func (e *fakeEscalator) CompanionRunning() (bool, error) {
	return e.running, nil
}

type countingRecorder struct {
	phases    []string
	outcomes  []string
	heartbeat int
}

func (r *countingRecorder) PhaseChanged(_, phase string) { r.phases = append(r.phases, phase) }
func (r *countingRecorder) PollCompleted(string, bool)   {}
func (r *countingRecorder) Escalated(_, outcome string)  { r.outcomes = append(r.outcomes, outcome) }
func (r *countingRecorder) OpcodeSent(_, op string, _ error) {
	if op == protocol.OpHeartbeat.String() {
		r.heartbeat++
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.PollInterval = time.Second
	cfg.NumberOfTries = 3
	cfg.EscalationGrace = 3 * time.Second
	cfg.HeartbeatInterval = 30 * time.Second
	return cfg
}

func newTestSupervisor(t *testing.T, cfg Config) (*Supervisor, *fakeLink, *fakeEscalator, *eventloop.Manual, *countingRecorder) {
	t.Helper()
	link := &fakeLink{}
	esc := &fakeEscalator{}
	clock := eventloop.NewManual()
	rec := &countingRecorder{}
	s := New("DeepLook", cfg, link, esc, clock, rec, zaptest.NewLogger(t).Sugar())
	return s, link, esc, clock, rec
}

func TestSupervisor_FirstPollAfterInitialDelay(t *testing.T) {
	s, link, _, clock, _ := newTestSupervisor(t, testConfig())

	s.Start()
	assert.Equal(t, PhaseProbing, s.Phase())

	clock.Advance(499 * time.Millisecond)
	assert.Zero(t, link.opens)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, link.opens)
	assert.Equal(t, 1, s.Failures())

	clock.Advance(time.Second)
	assert.Equal(t, 2, link.opens)
}

func TestSupervisor_EscalatesOncePerExhaustedBudget(t *testing.T) {
	s, link, esc, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()

	// Polls at 0.5s and 1.5s fail without escalating
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 2, s.Failures())
	assert.Zero(t, esc.launches)

	// Third consecutive failure escalates exactly once and resets the counter
	clock.Advance(time.Second)
	assert.Equal(t, 1, esc.launches)
	assert.Zero(t, s.Failures())
	assert.Equal(t, PhaseEscalating, s.Phase())
	assert.Equal(t, 3, link.opens)

	// Two more failures stay under budget
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, esc.launches)
	assert.Equal(t, 2, s.Failures())
}

func TestSupervisor_InstallerAfterGraceWhenStillDisconnected(t *testing.T) {
	s, _, esc, clock, rec := newTestSupervisor(t, testConfig())
	s.Start()

	clock.Advance(2500 * time.Millisecond)
	require.Equal(t, 1, esc.launches)
	assert.Zero(t, esc.installers)

	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, esc.installers)
	assert.NotEqual(t, PhaseEscalating, s.Phase())
	assert.Equal(t, []string{OutcomeLaunched, OutcomeInstaller}, rec.outcomes)
}

func TestSupervisor_NoInstallerWhenLaunchConnects(t *testing.T) {
	s, link, esc, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()

	clock.Advance(2500 * time.Millisecond)
	require.Equal(t, 1, esc.launches)

	link.connected = true
	clock.Advance(3 * time.Second)
	assert.Zero(t, esc.installers)
	assert.Equal(t, PhaseConnected, s.Phase())
}

func TestSupervisor_LaunchFailureOpensInstallerImmediately(t *testing.T) {
	s, _, esc, clock, _ := newTestSupervisor(t, testConfig())
	esc.launchErr = errors.ErrLaunchFailed
	s.Start()

	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, 1, esc.launches)
	assert.Equal(t, 1, esc.installers)
	assert.Equal(t, PhaseProbing, s.Phase())
}

func TestSupervisor_SkipsLaunchWhenProcessRunning(t *testing.T) {
	s, _, esc, clock, rec := newTestSupervisor(t, testConfig())
	esc.running = true
	s.Start()

	clock.Advance(2500 * time.Millisecond)
	assert.Zero(t, esc.launches)
	assert.Zero(t, esc.installers)
	assert.Equal(t, []string{OutcomeSkipped}, rec.outcomes)
}

func TestSupervisor_EscalationDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Escalate = false
	s, link, esc, clock, _ := newTestSupervisor(t, cfg)
	s.Start()

	clock.Advance(10 * time.Second)
	assert.Zero(t, esc.launches)
	assert.Equal(t, 10, link.opens)
}

func TestSupervisor_SuccessResetsFailures(t *testing.T) {
	s, link, esc, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 2, s.Failures())

	link.connected = true
	clock.Advance(time.Second)
	assert.Zero(t, s.Failures())
	assert.Equal(t, PhaseConnected, s.Phase())

	link.connected = false
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, s.Failures())
	assert.Equal(t, PhaseProbing, s.Phase())
	assert.Zero(t, esc.launches)
}

func TestSupervisor_HeartbeatOnlyWhileConnected(t *testing.T) {
	s, link, _, clock, rec := newTestSupervisor(t, testConfig())
	link.connected = true
	s.Start()

	clock.Advance(500 * time.Millisecond)
	require.Equal(t, PhaseConnected, s.Phase())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, link.count(protocol.OpHeartbeat))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, link.count(protocol.OpHeartbeat))

	link.connected = false
	clock.Advance(90 * time.Second)
	assert.Equal(t, 2, link.count(protocol.OpHeartbeat))
	assert.Equal(t, 2, rec.heartbeat)

	link.connected = true
	clock.Advance(30 * time.Second)
	assert.Equal(t, 3, link.count(protocol.OpHeartbeat))
}

func TestSupervisor_HeartbeatDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Heartbeat = false
	s, link, _, clock, _ := newTestSupervisor(t, cfg)
	link.connected = true
	s.Start()

	clock.Advance(2 * time.Minute)
	assert.Zero(t, link.count(protocol.OpHeartbeat))
}

func TestSupervisor_StopSendsCloseAndClearsTimers(t *testing.T) {
	s, link, _, clock, _ := newTestSupervisor(t, testConfig())
	link.connected = true
	s.Start()
	clock.Advance(time.Second)
	require.Greater(t, clock.Pending(), 0)

	s.Stop()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Equal(t, []protocol.Opcode{protocol.OpClose}, link.sent)
	assert.Zero(t, clock.Pending())

	link.connected = false
	clock.Advance(time.Minute)
	assert.Zero(t, link.opens)
}

func TestSupervisor_StopWhileDisconnectedSendsNothing(t *testing.T) {
	s, link, _, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()
	clock.Advance(time.Second)

	s.Stop()
	assert.Empty(t, link.sent)
	assert.Zero(t, clock.Pending())
}

func TestSupervisor_StopBeforeFirstPoll(t *testing.T) {
	s, link, _, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()
	s.Stop()

	clock.Advance(time.Minute)
	assert.Zero(t, link.opens)
}

func TestSupervisor_Reconfigure(t *testing.T) {
	s, link, esc, clock, _ := newTestSupervisor(t, testConfig())
	s.Start()
	clock.Advance(1500 * time.Millisecond)
	require.Equal(t, 2, s.Failures())

	cfg := testConfig()
	cfg.PollInterval = 5 * time.Second
	cfg.NumberOfTries = 2
	s.Reconfigure(cfg)
	assert.Equal(t, 1, s.Failures())

	clock.Advance(4 * time.Second)
	assert.Equal(t, 2, link.opens)

	clock.Advance(time.Second)
	assert.Equal(t, 3, link.opens)
	assert.Equal(t, 1, esc.launches)
}

func TestSupervisor_ReconfigureHeartbeatInterval(t *testing.T) {
	s, link, _, clock, _ := newTestSupervisor(t, testConfig())
	link.connected = true
	s.Start()
	clock.Advance(500 * time.Millisecond)
	require.Equal(t, PhaseConnected, s.Phase())

	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Second
	s.Reconfigure(cfg)

	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, link.count(protocol.OpHeartbeat))
	clock.Advance(10 * time.Second)
	assert.Equal(t, 2, link.count(protocol.OpHeartbeat))

	cfg.Heartbeat = false
	s.Reconfigure(cfg)
	clock.Advance(time.Minute)
	assert.Equal(t, 2, link.count(protocol.OpHeartbeat))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.NumberOfTries = 0
	assert.True(t, errors.Is(bad.Validate(), errors.ErrInvalidRequest))

	bad = DefaultConfig()
	bad.PollInterval = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.HeartbeatInterval = 0
	assert.Error(t, bad.Validate())
	bad.Heartbeat = false
	assert.NoError(t, bad.Validate())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "escalating", PhaseEscalating.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
