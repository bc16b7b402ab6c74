// Package main implements a terminal chat client for the question
// answering API. Answers stream into the transcript as the server
// generates them.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	godotenv.Load()
	baseURL := envOr("QA_API_URL", "http://localhost:5001")

	client := &askClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}

	p := tea.NewProgram(newModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat error:", err)
		os.Exit(1)
	}
}

// --- API client ---

type askClient struct {
	baseURL string
	http    *http.Client
}

// chunkMsg is one streamed answer fragment.
type chunkMsg string

// doneMsg ends an answer. silent means the server chose not to respond.
type doneMsg struct{ silent bool }

type errMsg struct{ err error }

// ask streams the answer for a question into a channel of tea messages.
func (c *askClient) ask(ctx context.Context, question string) <-chan tea.Msg {
	ch := make(chan tea.Msg, 8)
	go func() {
		defer close(ch)

		body, _ := json.Marshal(map[string]string{"question": question})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ask", bytes.NewReader(body))
		if err != nil {
			ch <- errMsg{err}
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			ch <- errMsg{err}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNoContent {
			ch <- doneMsg{silent: true}
			return
		}
		if resp.StatusCode != http.StatusOK {
			ch <- errMsg{fmt.Errorf("server returned %s", resp.Status)}
			return
		}

		reader := bufio.NewReader(resp.Body)
		buf := make([]byte, 512)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				ch <- chunkMsg(buf[:n])
			}
			if err != nil {
				ch <- doneMsg{}
				return
			}
		}
	}()
	return ch
}

// --- TUI model ---

var (
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type model struct {
	client     *askClient
	input      textinput.Model
	viewport   viewport.Model
	transcript strings.Builder
	current    strings.Builder // answer being streamed
	stream     <-chan tea.Msg
	status     string
	ready      bool
}

func newModel(client *askClient) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Sorunuzu yazın ve Enter'a basın"
	ti.Focus()
	ti.CharLimit = 0
	return model{
		client:   client,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Hazır.",
	}
}

func (m model) Init() tea.Cmd { return textinput.Blink }

// waitForMsg pulls the next message off the answer stream.
func waitForMsg(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		vh := msg.Height - th - ih - 3
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = vh
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && m.stream == nil {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			m.input.Reset()
			m.transcript.WriteString(questionStyle.Render("Soru: "+q) + "\n")
			m.current.Reset()
			m.status = "Cevap bekleniyor..."
			m.stream = m.client.ask(context.Background(), q)
			m.refresh()
			return m, waitForMsg(m.stream)
		}

	case chunkMsg:
		m.current.WriteString(string(msg))
		m.status = "Yanıtlanıyor..."
		m.refresh()
		return m, waitForMsg(m.stream)

	case doneMsg:
		if msg.silent {
			m.transcript.WriteString(mutedStyle.Render("(sessiz kalındı)") + "\n\n")
		} else {
			m.transcript.WriteString(answerStyle.Render(m.current.String()) + "\n\n")
		}
		m.current.Reset()
		m.stream = nil
		m.status = "Hazır."
		m.refresh()
		return m, nil

	case errMsg:
		m.transcript.WriteString(mutedStyle.Render("Hata: "+msg.err.Error()) + "\n\n")
		m.current.Reset()
		m.stream = nil
		m.status = "Hazır."
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	content := m.transcript.String()
	if m.current.Len() > 0 {
		content += answerStyle.Render(m.current.String())
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Yükleniyor..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Yönetmelik Soru-Cevap")
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}
