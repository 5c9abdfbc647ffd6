package main

import (
	"fmt"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// runProgress drives a small bubbletea program off events, one message
// per stylesheet module the compiler's Linker actually fetches and
// compiles (xslt.FileLinker.Progress) — a livelier stand-in for
// cmd/cli/spin.go's hand-rolled terminal spinner, used here because
// xsltc's own compile command has real discrete progress events
// (modules resolved) to report rather than just "working, working".
// Nothing in the rest of the teacher's tree imports bubbletea/bubbles/
// lipgloss, despite all three being in go.mod; this is where they
// finally get exercised.
func runProgress(events <-chan string) {
	p := tea.NewProgram(newProgressModel(events))
	if _, err := p.Run(); err != nil {
		fmt.Println(newProgressModel(events).View())
	}
}

type resolvedMsg string

type linkingDoneMsg struct{}

type progressModel struct {
	spin     spinner.Model
	events   <-chan string
	resolved []string
	done     bool
}

func newProgressModel(events <-chan string) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return progressModel{spin: s, events: events}
}

func waitForEvent(events <-chan string) tea.Cmd {
	return func() tea.Msg {
		href, ok := <-events
		if !ok {
			return linkingDoneMsg{}
		}
		return resolvedMsg(href)
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitForEvent(m.events))
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resolvedMsg:
		m.resolved = append(m.resolved, string(msg))
		return m, waitForEvent(m.events)
	case linkingDoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return fmt.Sprintf("linked %d module(s)\n", len(m.resolved))
	}
	return fmt.Sprintf("%s linking modules (%d resolved so far)\n", m.spin.View(), len(m.resolved))
}
