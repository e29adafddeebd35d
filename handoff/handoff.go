// Package handoff mediates exclusive pointer control between the host viewer
// and a companion process.
//
// When the companion takes control the host's primary-button tool is disabled
// and remembered; when control comes back (or the connection fails) exactly
// that tool is re-activated on the primary button and its usual binding. A
// reset latch armed by each such release lets the next camera change send a
// single Reset opcode.
package handoff

import (
	"time"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap"
)

// Tool names with a known binding
const (
	ToolWindowLevel = "WindowLevel"
	ToolPan         = "Pan"
	ToolZoom        = "Zoom"
)

var bindings = map[string]plugin.MouseButton{
	ToolWindowLevel: plugin.MouseButtonAuxiliary,
	ToolPan:         plugin.MouseButtonSecondary,
	ToolZoom:        plugin.MouseButtonPrimary,
}

// BindingFor returns the mouse button a tool is restored to
func BindingFor(tool string) (plugin.MouseButton, bool) {
	b, ok := bindings[tool]
	return b, ok
}

// Sender delivers opcodes to the companion. *transport.Client satisfies it.
type Sender interface {
	SendOpcode(op protocol.Opcode) error
}

// Recorder counts handoff transitions. metrics.Registry satisfies it.
type Recorder interface {
	HandoffChanged(extension, action string)
}

// Config controls the camera-change reset
type Config struct {
	ResetOnCameraChange bool
	ResetDebounce       time.Duration
}

// DefaultConfig enables the reset with a short debounce
func DefaultConfig() Config {
	return Config{
		ResetOnCameraChange: true,
		ResetDebounce:       250 * time.Millisecond,
	}
}

// Coordinator owns the handoff state of one extension. Call it from the event loop only.
type Coordinator struct {
	name   string
	cfg    Config
	tools  plugin.ToolGroupService
	sender Sender
	sched  eventloop.Scheduler
	rec    Recorder
	logger *zap.SugaredLogger

	held       string
	heldGroup  string
	resetArmed bool
	debounce   eventloop.Timer
}

// New creates a coordinator holding no tool. rec may be nil.
func New(name string, cfg Config, tools plugin.ToolGroupService, sender Sender, sched eventloop.Scheduler, rec Recorder, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		name:   name,
		cfg:    cfg,
		tools:  tools,
		sender: sender,
		sched:  sched,
		rec:    rec,
		logger: log,
	}
}

// Held returns the tool disabled on the companion's behalf
func (c *Coordinator) Held() (string, bool) {
	return c.held, c.held != ""
}

// ResetArmed reports whether the next camera change sends a Reset
func (c *Coordinator) ResetArmed() bool {
	return c.resetArmed
}

// Acquire disables the active primary-button tool and remembers it.
// It does nothing while a tool is already held or when no tool is active.
func (c *Coordinator) Acquire() error {
	if c.held != "" {
		c.logger.Debugw("Control already ceded", logger.FieldTool, c.held)
		return nil
	}

	group, err := c.tools.ActiveToolGroup()
	if err != nil {
		return errors.Wrap(err, "failed to resolve active tool group")
	}
	tool := group.ActivePrimaryTool()
	if tool == "" {
		c.logger.Debugw("No primary tool active, nothing to disable")
		return nil
	}

	if err := group.SetToolDisabled(tool); err != nil {
		return errors.Wrapf(err, "failed to disable %s", tool)
	}
	c.held = tool
	c.heldGroup = group.ID()

	c.logger.Infow("Pointer control ceded to companion",
		logger.FieldTool, tool,
		"tool_group", c.heldGroup,
	)
	c.record("acquire")
	return nil
}

// Release re-activates the held tool on the primary button plus its usual
// binding, and arms the reset latch. With nothing held it does nothing.
func (c *Coordinator) Release() error {
	if c.held == "" {
		return nil
	}

	group, ok := c.tools.ToolGroup(c.heldGroup)
	if !ok {
		var err error
		if group, err = c.tools.ActiveToolGroup(); err != nil {
			return errors.Wrap(err, "failed to resolve tool group for release")
		}
	}

	tool := c.held
	if err := group.SetToolActive(tool, restoreBindings(tool)...); err != nil {
		return errors.Wrapf(err, "failed to re-activate %s", tool)
	}

	c.held = ""
	c.heldGroup = ""
	c.resetArmed = true
	c.logger.Infow("Pointer control returned to viewer", logger.FieldTool, tool)
	c.record("release")
	return nil
}

// restoreBindings puts tool back on the primary button. Tools in the lookup
// also get their usual button; other tools get nothing more.
func restoreBindings(tool string) []plugin.Binding {
	out := []plugin.Binding{{MouseButton: plugin.MouseButtonPrimary}}
	if button, known := BindingFor(tool); known && button != plugin.MouseButtonPrimary {
		out = append(out, plugin.Binding{MouseButton: button})
	}
	return out
}

// CameraModified restarts the reset debounce. When it fires with the latch
// armed, one Reset opcode is sent.
func (c *Coordinator) CameraModified() {
	if !c.cfg.ResetOnCameraChange {
		return
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = c.sched.AfterFunc(c.cfg.ResetDebounce, c.flushReset)
}

func (c *Coordinator) flushReset() {
	c.debounce = nil
	if !c.resetArmed {
		return
	}
	if err := c.sender.SendOpcode(protocol.OpReset); err != nil {
		// Stay armed so the next camera change after reconnecting resets
		c.logger.Debugw("Reset not sent", logger.FieldError, err)
		return
	}
	c.resetArmed = false
	c.record("reset")
}

// Reconfigure swaps the camera-change policy
func (c *Coordinator) Reconfigure(cfg Config) {
	c.cfg = cfg
	if !cfg.ResetOnCameraChange {
		c.Stop()
	}
}

// Stop cancels a pending reset
func (c *Coordinator) Stop() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

func (c *Coordinator) record(action string) {
	if c.rec != nil {
		c.rec.HandoffChanged(c.name, action)
	}
}
