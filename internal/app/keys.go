package app

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Home       key.Binding
	Insights   key.Binding
	Predict    key.Binding
	Retrain    key.Binding
	NextScreen key.Binding
	PrevScreen key.Binding
	NextField  key.Binding
	PrevField  key.Binding
	Cycle      key.Binding
	Select     key.Binding
	Submit     key.Binding
	Scroll     key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Home:       key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "home")),
		Insights:   key.NewBinding(key.WithKeys("f2"), key.WithHelp("f2", "insights")),
		Predict:    key.NewBinding(key.WithKeys("f3"), key.WithHelp("f3", "predict")),
		Retrain:    key.NewBinding(key.WithKeys("f4"), key.WithHelp("f4", "retrain")),
		NextScreen: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next screen")),
		PrevScreen: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "prev screen")),
		NextField:  key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		PrevField:  key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
		Cycle:      key.NewBinding(key.WithKeys("left", "right"), key.WithHelp("←/→", "change option")),
		Select:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Submit:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "submit")),
		Scroll:     key.NewBinding(key.WithKeys("pgup", "pgdown"), key.WithHelp("pgup/pgdn", "scroll")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// screenKeys narrows the help line to what the current screen reacts to.
type screenKeys struct {
	keys   keyMap
	screen screen
}

func (s screenKeys) ShortHelp() []key.Binding {
	nav := []key.Binding{s.keys.Home, s.keys.Insights, s.keys.Predict, s.keys.Retrain}
	switch s.screen {
	case screenPredict:
		return append(nav, s.keys.NextField, s.keys.Cycle, s.keys.Submit, s.keys.Quit)
	case screenRetrain:
		return append(nav, s.keys.Select, s.keys.Submit, s.keys.Scroll, s.keys.Quit)
	default:
		return append(nav, s.keys.Quit)
	}
}

func (s screenKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{s.keys.Home, s.keys.Insights, s.keys.Predict, s.keys.Retrain, s.keys.NextScreen, s.keys.PrevScreen},
		{s.keys.NextField, s.keys.PrevField, s.keys.Cycle, s.keys.Select, s.keys.Submit, s.keys.Scroll},
		{s.keys.Quit},
	}
}
