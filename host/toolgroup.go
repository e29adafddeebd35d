package host

import (
	"sort"
	"sync"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
)

// ToolMode is the state of one tool within a group
type ToolMode string

const (
	ToolActive   ToolMode = "active"
	ToolPassive  ToolMode = "passive"
	ToolDisabled ToolMode = "disabled"
)

type toolState struct {
	mode     ToolMode
	bindings []plugin.MouseButton
}

// ToolGroup is an in-memory tool group. Each mouse button is bound to at
// most one active tool; binding a button moves it from whichever tool held it.
type ToolGroup struct {
	id string

	mu    sync.Mutex
	tools map[string]*toolState
}

// NewToolGroup creates a group with the given tools, all passive
func NewToolGroup(id string, tools ...string) *ToolGroup {
	g := &ToolGroup{id: id, tools: make(map[string]*toolState)}
	for _, name := range tools {
		g.tools[name] = &toolState{mode: ToolPassive}
	}
	return g
}

func (g *ToolGroup) ID() string { return g.id }

// ActivePrimaryTool implements plugin.ToolGroup
func (g *ToolGroup) ActivePrimaryTool() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, st := range g.tools {
		if st.mode == ToolActive && hasButton(st.bindings, plugin.MouseButtonPrimary) {
			return name
		}
	}
	return ""
}

// SetToolDisabled implements plugin.ToolGroup
func (g *ToolGroup) SetToolDisabled(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tools[name]
	if !ok {
		return errors.NewNotFoundError("tool %s is not in group %s", name, g.id)
	}
	st.mode = ToolDisabled
	st.bindings = nil
	return nil
}

// SetToolActive implements plugin.ToolGroup. Without bindings the tool keeps
// the buttons it had.
func (g *ToolGroup) SetToolActive(name string, bindings ...plugin.Binding) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tools[name]
	if !ok {
		return errors.NewNotFoundError("tool %s is not in group %s", name, g.id)
	}

	for _, b := range bindings {
		for other, ost := range g.tools {
			if other == name {
				continue
			}
			ost.bindings = removeButton(ost.bindings, b.MouseButton)
			if ost.mode == ToolActive && len(ost.bindings) == 0 {
				ost.mode = ToolPassive
			}
		}
		if !hasButton(st.bindings, b.MouseButton) {
			st.bindings = append(st.bindings, b.MouseButton)
		}
	}
	st.mode = ToolActive
	return nil
}

// Mode returns the state of a tool and the buttons bound to it
func (g *ToolGroup) Mode(name string) (ToolMode, []plugin.MouseButton, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.tools[name]
	if !ok {
		return "", nil, false
	}
	buttons := append([]plugin.MouseButton(nil), st.bindings...)
	return st.mode, buttons, true
}

// Tools lists the tool names in the group
func (g *ToolGroup) Tools() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.tools))
	for name := range g.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hasButton(buttons []plugin.MouseButton, b plugin.MouseButton) bool {
	for _, x := range buttons {
		if x == b {
			return true
		}
	}
	return false
}

func removeButton(buttons []plugin.MouseButton, b plugin.MouseButton) []plugin.MouseButton {
	out := buttons[:0]
	for _, x := range buttons {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

// ToolGroups indexes tool groups by id and tracks the active one
type ToolGroups struct {
	mu     sync.RWMutex
	groups map[string]*ToolGroup
	active string
}

// NewToolGroups registers groups. The first one is active.
func NewToolGroups(groups ...*ToolGroup) *ToolGroups {
	s := &ToolGroups{groups: make(map[string]*ToolGroup)}
	for _, g := range groups {
		s.groups[g.id] = g
		if s.active == "" {
			s.active = g.id
		}
	}
	return s
}

// SetActive switches the active group
func (s *ToolGroups) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return errors.NewNotFoundError("tool group %s", id)
	}
	s.active = id
	return nil
}

// ActiveToolGroup implements plugin.ToolGroupService
func (s *ToolGroups) ActiveToolGroup() (plugin.ToolGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[s.active]
	if !ok {
		return nil, errors.Wrap(errors.ErrNoActiveViewport, "no tool group")
	}
	return g, nil
}

// ToolGroup implements plugin.ToolGroupService
func (s *ToolGroups) ToolGroup(id string) (plugin.ToolGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, false
	}
	return g, true
}
