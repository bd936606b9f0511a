package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/cipengine/internal/cip/protocol"
)

// PollFunc issues one request and returns its reply.
type PollFunc func(ctx context.Context) (*protocol.Reply, error)

// WatchModel polls a request on an interval and shows the latest reply.
type WatchModel struct {
	title    string
	poll     PollFunc
	interval time.Duration
	timeout  time.Duration

	count    int
	failures int
	reply    *protocol.Reply
	err      error
	rtt      time.Duration
	paused   bool
	inFlight bool
	notice   string
	copy     func([]byte) error
}

type watchTickMsg time.Time

type pollResultMsg struct {
	reply *protocol.Reply
	err   error
	rtt   time.Duration
}

// NewWatchModel returns a model polling every interval. Each poll is bounded
// by timeout.
func NewWatchModel(title string, poll PollFunc, interval, timeout time.Duration) *WatchModel {
	return &WatchModel{
		title:    title,
		poll:     poll,
		interval: interval,
		timeout:  timeout,
		copy:     CopyHex,
	}
}

// Watch runs the model until the user quits.
func Watch(title string, poll PollFunc, interval, timeout time.Duration) error {
	_, err := tea.NewProgram(NewWatchModel(title, poll, interval, timeout)).Run()
	return err
}

func (m *WatchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m *WatchModel) pollCmd() tea.Cmd {
	poll, timeout := m.poll, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		reply, err := poll(ctx)
		return pollResultMsg{reply: reply, err: err, rtt: time.Since(start)}
	}
}

// Init implements tea.Model.
func (m *WatchModel) Init() tea.Cmd {
	m.inFlight = true
	return m.pollCmd()
}

// Update implements tea.Model.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
			if !m.paused && !m.inFlight {
				m.inFlight = true
				return m, m.pollCmd()
			}
		case "c":
			if m.reply == nil || len(m.reply.Data) == 0 {
				m.notice = "nothing to copy"
			} else if err := m.copy(m.reply.Data); err != nil {
				m.notice = err.Error()
			} else {
				m.notice = fmt.Sprintf("copied %d bytes", len(m.reply.Data))
			}
		}
		return m, nil

	case pollResultMsg:
		m.inFlight = false
		m.count++
		m.rtt = msg.rtt
		m.err = msg.err
		if msg.reply != nil {
			m.reply = msg.reply
		}
		if msg.err != nil {
			m.failures++
		}
		if m.paused {
			return m, nil
		}
		return m, m.tick()

	case watchTickMsg:
		if m.paused || m.inFlight {
			return m, nil
		}
		m.inFlight = true
		return m, m.pollCmd()
	}
	return m, nil
}

// View implements tea.Model.
func (m *WatchModel) View() string {
	var b strings.Builder
	state := successStyle.Render("polling")
	if m.paused {
		state = warningStyle.Render("paused")
	}
	b.WriteString(fmt.Sprintf("%s  %s  every %s\n", titleStyle.Render(m.title), state, m.interval))
	b.WriteString(dimStyle.Render(fmt.Sprintf("polls %d  failures %d  last rtt %.3fms",
		m.count, m.failures, float64(m.rtt.Microseconds())/1000)))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(RenderReply("Last reply", m.reply))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(warningStyle.Render(m.notice) + "\n")
	}
	b.WriteString(footerStyle.Render("p pause  c copy data  q quit"))
	return b.String()
}
