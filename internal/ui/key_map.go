package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings of every view. Navigation inside lists is left to [list.Model].
type keyMap struct {
	open    key.Binding
	sync    key.Binding
	back    key.Binding
	confirm key.Binding
	cancel  key.Binding
	again   key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		sync:    key.NewBinding(key.WithKeys("enter", "s"), key.WithHelp("enter/s", "sync")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		confirm: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "start")),
		cancel:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "cancel")),
		again:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "sync another")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) playlistHelp() []key.Binding { return []key.Binding{k.open, k.quit} }

func (k keyMap) trackHelp() []key.Binding { return []key.Binding{k.sync, k.back, k.quit} }

func (k keyMap) confirmHelp() []key.Binding { return []key.Binding{k.confirm, k.cancel, k.quit} }

// resultHelp omits "sync another" when following a job started elsewhere.
func (k keyMap) resultHelp(watching bool) []key.Binding {
	if watching {
		return []key.Binding{k.quit}
	}
	return []key.Binding{k.again, k.quit}
}
