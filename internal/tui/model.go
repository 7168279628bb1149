package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/domain"
	"docchat/internal/embedding/tfidf"
	"docchat/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Ask(ctx context.Context, question string) (*service.Reply, error)
	Summarize(ctx context.Context) (string, error)
	LoadFile(ctx context.Context, path string) error
	ClearConversation() error
	Turns() []domain.Turn
	DocumentID() string
	DocumentName() string
}

type (
	summaryMsg struct {
		docID string
		text  string
		err   error
	}
	loadedMsg struct {
		path string
		err  error
	}
	replyMsg struct {
		reply *service.Reply
		err   error
	}
	fragmentMsg struct {
		reply *service.Reply
		text  string
	}
	replyDoneMsg struct {
		reply *service.Reply
		err   error
	}
)

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	service  ChatPort
	input    textinput.Model
	viewport viewport.Model
	summary  string
	status   string
	ready    bool

	reply     *service.Reply
	streaming string

	sources     []domain.SearchResult
	cursor      int
	showSources bool
	lastQuery   string
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc ChatPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /load <path>, /summary, /sources, /clear"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  svc,
		input:    ti,
		viewport: vp,
		summary:  "Summarizing...",
		status:   fmt.Sprintf("Loaded %s.", svc.DocumentName()),
	}
}

// Init starts the cursor blink and the initial summary.
func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.summarize()) }

// Update handles key, window and background events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		summaryLines := lipgloss.Height(m.summary)
		reserved := 1 + summaryLines + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil

	case summaryMsg:
		if msg.docID != m.service.DocumentID() {
			return m, nil
		}
		if msg.err != nil {
			m.summary = "Summary unavailable."
			m.status = "Error: " + msg.err.Error()
		} else {
			m.summary = msg.text
		}
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			if m.service.DocumentID() == "" {
				m.summary = "No document loaded."
				m.sources, m.cursor, m.showSources = nil, 0, false
				m.refresh()
			}
			return m, nil
		}
		m.status = fmt.Sprintf("Loaded %s.", m.service.DocumentName())
		m.sources, m.cursor, m.showSources = nil, 0, false
		m.summary = "Summarizing..."
		m.refresh()
		return m, m.summarize()

	case replyMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.reply = msg.reply
		m.sources = msg.reply.Sources()
		m.cursor = 0
		m.status = "Answering... (Esc to stop)"
		m.refresh()
		return m, nextFragment(m.reply)

	case fragmentMsg:
		if m.reply == nil || msg.reply != m.reply {
			return m, nil
		}
		m.streaming += msg.text
		m.refresh()
		return m, nextFragment(m.reply)

	case replyDoneMsg:
		if m.reply == nil || msg.reply != m.reply {
			return m, nil
		}
		if msg.err != nil {
			m.endReply("Error: " + msg.err.Error())
		} else {
			m.endReply(fmt.Sprintf("Answered from %d passage(s).", len(m.sources)))
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.reply != nil {
				_ = m.reply.Close()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "esc":
			if m.reply != nil {
				_ = m.reply.Close()
				m.endReply("Stopped.")
			}
			return m, nil
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			if m.reply != nil {
				m.status = "Wait for the current answer to finish."
				return m, nil
			}
			m.input.SetValue("")
			return m.command(q)
		case "up", "down":
			if m.showSources && len(m.sources) > 0 {
				step := 1
				if msg.String() == "up" {
					step = len(m.sources) - 1
				}
				m.cursor = (m.cursor + step) % len(m.sources)
				m.refresh()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) command(q string) (tea.Model, tea.Cmd) {
	switch {
	case strings.HasPrefix(q, "/load "):
		path := strings.TrimSpace(strings.TrimPrefix(q, "/load "))
		m.status = "Loading " + path + "..."
		svc, ctx := m.service, m.ctx
		return m, func() tea.Msg { return loadedMsg{path: path, err: svc.LoadFile(ctx, path)} }
	case q == "/summary":
		m.summary = "Summarizing..."
		return m, m.summarize()
	case q == "/clear":
		if err := m.service.ClearConversation(); err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.status = "Conversation cleared."
			m.sources, m.cursor = nil, 0
		}
		m.refresh()
		return m, nil
	case q == "/sources":
		m.showSources = !m.showSources
		m.refresh()
		return m, nil
	case strings.HasPrefix(q, "/"):
		m.status = fmt.Sprintf("Unknown command %q.", q)
		return m, nil
	}
	m.lastQuery = q
	m.streaming = ""
	m.status = "Retrieving..."
	svc, ctx := m.service, m.ctx
	return m, func() tea.Msg {
		r, err := svc.Ask(ctx, q)
		return replyMsg{reply: r, err: err}
	}
}

func (m *Model) endReply(status string) {
	m.reply = nil
	m.streaming = ""
	m.status = status
	m.refresh()
}

func (m Model) summarize() tea.Cmd {
	svc, ctx := m.service, m.ctx
	id := svc.DocumentID()
	return func() tea.Msg {
		text, err := svc.Summarize(ctx)
		return summaryMsg{docID: id, text: text, err: err}
	}
}

func nextFragment(r *service.Reply) tea.Cmd {
	return func() tea.Msg {
		frag, err := r.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return replyDoneMsg{reply: r}
			}
			return replyDoneMsg{reply: r, err: err}
		}
		return fragmentMsg{reply: r, text: frag}
	}
}

func (m *Model) refresh() {
	if m.showSources {
		m.viewport.SetContent(m.renderCurrentSource())
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat: " + m.service.DocumentName())
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(m.viewport.Width).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	turns := m.service.Turns()
	if len(turns) == 0 && m.reply == nil {
		return "No questions yet."
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(renderTurn(t.Role, t.Content, width))
		b.WriteString("\n\n")
	}
	if m.reply != nil {
		b.WriteString(renderTurn(domain.RoleAssistant, m.streaming+"▌", width))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTurn(role domain.Role, content string, width int) string {
	label := userStyle.Render("You")
	if role == domain.RoleAssistant {
		label = assistantStyle.Render("Assistant")
	}
	return label + "\n" + lipgloss.NewStyle().Width(width).Render(content)
}

func (m Model) renderCurrentSource() string {
	if len(m.sources) == 0 {
		return "No sources yet."
	}
	r := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  score=%.3f  %s", m.cursor+1, len(m.sources), r.Score, r.Chunk.Source)
	if r.Chunk.Page > 0 {
		title += fmt.Sprintf(" p.%d", r.Chunk.Page)
	}
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

// toTokenSet uses the retrieval tokenizer so highlighting agrees with ranking.
func toTokenSet(s string) map[string]struct{} {
	tokens := tfidf.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := tfidf.Tokenize(sentence)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
