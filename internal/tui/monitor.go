package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/walmartlabs/concord-sub001/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK        = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusQueued    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusSuspended = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// --- Types ---

type instanceNode struct {
	ID          string
	WorkflowRef string
	Status      string
	Kind        string
	ClaimedBy   string
	WaitKey     string
	StartTime   time.Time
	EndTime     time.Time
	Children    []*instanceNode
	Parent      *instanceNode
}

type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	instances map[string]*instanceNode
	roots     []*instanceNode
	eventLog  []events.Event
	hubEvents chan events.Event

	health struct {
		Status        string
		UptimeSeconds int64
		QueueDepth    int
		AgentsLive    int
	}

	instTable table.Model

	mu sync.Mutex
}

type eventMsg events.Event
type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueDepth    int    `json:"queue_depth"`
	AgentsLive    int    `json:"agents_live"`
}
type errMsg error

// --- Init ---

func NewMonitor(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Workflow", Width: 24},
			{Title: "ID", Width: 10},
			{Title: "Agent", Width: 14},
			{Title: "Wait", Width: 12},
			{Title: "Duration", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		instances: make(map[string]*instanceNode),
		roots:     make([]*instanceNode, 0),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		instTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.receiveNextEvent(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.instTable.SetWidth(m.width - 6)

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.QueueDepth = msg.QueueDepth
		m.health.AgentsLive = msg.AgentsLive
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case errMsg:
		// Surface via the degraded header on the next health poll.
	}

	m.instTable, cmd = m.instTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > 50 {
		m.eventLog = m.eventLog[:50]
	}

	if !strings.HasPrefix(e.Type, "process.") {
		return
	}
	status := strings.TrimPrefix(e.Type, "process.")

	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	instanceID, _ := data["instance_id"].(string)
	if instanceID == "" {
		return
	}

	node, ok := m.instances[instanceID]
	if !ok {
		node = &instanceNode{ID: instanceID}
		m.instances[instanceID] = node

		parentID, _ := data["parent_id"].(string)
		if parentID != "" {
			if parent, ok := m.instances[parentID]; ok {
				node.Parent = parent
				parent.Children = append(parent.Children, node)
			} else {
				m.roots = append(m.roots, node)
			}
		} else {
			m.roots = append(m.roots, node)
		}
	}

	if ref, ok := data["workflow_ref"].(string); ok {
		node.WorkflowRef = ref
	}
	if kind, ok := data["kind"].(string); ok {
		node.Kind = kind
	}
	if claimed, ok := data["claimed_by"].(string); ok {
		node.ClaimedBy = claimed
	}
	node.WaitKey = ""
	if key, ok := data["wait_key"].(string); ok {
		node.WaitKey = key
	}

	node.Status = status
	switch status {
	case "RUNNING":
		if node.StartTime.IsZero() {
			node.StartTime = time.Now()
		}
	case "FINISHED", "FAILED", "TIMED_OUT", "CANCELLED":
		node.EndTime = time.Now()
	}
}

func (m *Model) updateTable() {
	var rows []table.Row
	for _, root := range m.roots {
		rows = append(rows, m.nodeToRow(root, 0)...)
	}
	m.instTable.SetRows(rows)
}

func (m *Model) nodeToRow(node *instanceNode, depth int) []table.Row {
	indent := strings.Repeat("  ", depth)
	statusSym := "○"
	switch node.Status {
	case "ENQUEUED", "STARTING", "RESUMING":
		statusSym = statusQueued.Render("○")
	case "RUNNING":
		statusSym = statusRunning.Render("◉")
	case "SUSPENDED":
		statusSym = statusSuspended.Render("◎")
	case "FINISHED":
		statusSym = statusOK.Render("●")
	case "FAILED":
		statusSym = statusFailed.Render("∅")
	case "TIMED_OUT":
		statusSym = statusFailed.Render("◑")
	case "CANCELLED":
		statusSym = statusQueued.Render("◌")
	}

	duration := "-"
	if !node.StartTime.IsZero() {
		end := node.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		duration = end.Sub(node.StartTime).Round(time.Millisecond).String()
	}

	ref := node.WorkflowRef
	if node.Kind != "" {
		ref = ref + " (" + strings.ToLower(node.Kind) + ")"
	}

	id := node.ID
	if len(id) > 8 {
		id = id[:8]
	}

	row := table.Row{
		statusSym,
		indent + ref,
		id,
		node.ClaimedBy,
		node.WaitKey,
		duration,
	}

	rows := []table.Row{row}
	for _, child := range node.Children {
		rows = append(rows, m.nodeToRow(child, depth+1)...)
	}
	return rows
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	instancesView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Processes"),
			m.instTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Processes")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			instancesView,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	if m.health.Status != "ok" && m.health.Status != "" {
		status = statusFailed.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Queue: %d", m.health.QueueDepth),
		fmt.Sprintf("Agents: %d", m.health.AgentsLive),
	}

	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[0]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[1]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[2]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[3]),
		),
	)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-20s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

func (m Model) subscribeToEvents() tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{}
		req, _ := http.NewRequest("GET", m.apiURL+"/events", nil)
		req.Header.Set("Authorization", "Bearer "+m.apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				var ev events.Event
				if err := json.Unmarshal([]byte(line[6:]), &ev); err == nil {
					m.hubEvents <- ev
				}
			}
		}
		return nil
	}
}

func (m Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.hubEvents)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) fetchHealth() tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequest("GET", m.apiURL+"/healthz", nil)
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
