package deeplook

import (
	"context"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
)

// Status is the result of the deepLookStatus command
type Status struct {
	Connected    bool   `json:"connected"`
	Endpoint     string `json:"endpoint"`
	State        string `json:"state"`
	ConnectionID string `json:"connection_id,omitempty"`
	Phase        string `json:"phase"`
	Failures     int    `json:"failures"`
	HeldTool     string `json:"held_tool,omitempty"`
	ResetArmed   bool   `json:"reset_armed"`
}

// Commands implements plugin.Extension. The functions run on the host's loop.
func (e *Extension) Commands() map[string]plugin.CommandFunc {
	return map[string]plugin.CommandFunc{
		CommandIsConnected: e.ready(func() (interface{}, error) {
			return e.client.IsConnected(), nil
		}),
		CommandCloseURL: e.ready(func() (interface{}, error) {
			return nil, e.launcher.Stop()
		}),
		CommandLaunch: e.ready(func() (interface{}, error) {
			if e.client.IsConnected() {
				return false, nil
			}
			e.client.Open()
			if err := e.launcher.Launch(); err != nil {
				return false, err
			}
			return true, nil
		}),
		CommandReset:     e.opcode(protocol.OpReset),
		CommandClose:     e.opcode(protocol.OpClose),
		CommandHeartbeat: e.opcode(protocol.OpHeartbeat),
		CommandStatus: e.ready(func() (interface{}, error) {
			return e.status(), nil
		}),
	}
}

// opcode sends op if connected. Sending while disconnected is not an error,
// it reports false.
func (e *Extension) opcode(op protocol.Opcode) plugin.CommandFunc {
	return e.ready(func() (interface{}, error) {
		if !e.client.IsConnected() {
			return false, nil
		}
		err := e.client.SendOpcode(op)
		e.rec.OpcodeSent(Name, op.String(), err)
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func (e *Extension) ready(fn func() (interface{}, error)) plugin.CommandFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if !e.initialized {
			return nil, errors.Newf("%s is not initialized", Name)
		}
		return fn()
	}
}

func (e *Extension) status() Status {
	held, _ := e.handoff.Held()
	return Status{
		Connected:    e.client.IsConnected(),
		Endpoint:     e.client.URL(),
		State:        e.client.State().String(),
		ConnectionID: e.client.ConnectionID(),
		Phase:        e.supervisor.Phase().String(),
		Failures:     e.supervisor.Failures(),
		HeldTool:     held,
		ResetArmed:   e.handoff.ResetArmed(),
	}
}
