// 对账队列终端界面：轮询结算服务的 /api/recon 列表，
// 展示卡死的结算记录并支持现场标记处理完成。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("11"))

	resolvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	stuckStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// reconItem 与服务端 /api/recon 返回的条目对应（只取界面需要的字段）。
type reconItem struct {
	ID    string `json:"id"`
	Stuck struct {
		TradeID             string    `json:"trade_id"`
		UserID              string    `json:"user_id"`
		AssetID             string    `json:"asset_id"`
		Side                string    `json:"side"`
		CreatedAt           time.Time `json:"created_at"`
		FailedCompensations []struct {
			Step   string `json:"step"`
			Reason string `json:"reason"`
		} `json:"failed_compensations"`
	} `json:"stuck"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
}

type itemsMsg []reconItem
type refreshErrMsg error
type resolvedMsg string
type tickMsg time.Time

type model struct {
	api      *resty.Client
	operator string

	items    []reconItem
	cursor   int
	showAll  bool
	lastErr  error
	lastSync time.Time
}

func initialModel(api *resty.Client, operator string) model {
	return model{api: api, operator: operator}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.api, m.showAll), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// reconListBody 对应服务端 /api/recon 的响应外壳。
type reconListBody struct {
	Items []reconItem `json:"items"`
}

func fetchCmd(api *resty.Client, showAll bool) tea.Cmd {
	return func() tea.Msg {
		req := api.R().SetResult(&reconListBody{})
		if showAll {
			req.SetQueryParam("all", "1")
		}
		resp, err := req.Get("/api/recon")
		if err != nil {
			return refreshErrMsg(err)
		}
		if resp.StatusCode() != 200 {
			return refreshErrMsg(fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Body()))
		}
		return itemsMsg(resp.Result().(*reconListBody).Items)
	}
}

func resolveCmd(api *resty.Client, id, operator string) tea.Cmd {
	return func() tea.Msg {
		resp, err := api.R().
			SetBody(map[string]string{"operator": operator, "note": "resolved from recon-tui"}).
			Post("/api/recon/" + id + "/resolve")
		if err != nil {
			return refreshErrMsg(err)
		}
		if resp.StatusCode() != 200 {
			return refreshErrMsg(fmt.Errorf("resolve %s: HTTP %d", id, resp.StatusCode()))
		}
		return resolvedMsg(id)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "a":
			m.showAll = !m.showAll
			return m, fetchCmd(m.api, m.showAll)
		case "r":
			if m.cursor < len(m.items) && m.items[m.cursor].ResolvedAt == nil {
				return m, resolveCmd(m.api, m.items[m.cursor].ID, m.operator)
			}
		}

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.api, m.showAll), tickCmd())

	case itemsMsg:
		m.items = msg
		m.lastErr = nil
		m.lastSync = time.Now()
		if m.cursor >= len(m.items) && len(m.items) > 0 {
			m.cursor = len(m.items) - 1
		}

	case resolvedMsg:
		return m, fetchCmd(m.api, m.showAll)

	case refreshErrMsg:
		m.lastErr = msg
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	title := "对账队列"
	if m.showAll {
		title += "（含已处理）"
	}
	b.WriteString(headerStyle.Render(title))
	if !m.lastSync.IsZero() {
		b.WriteString(helpStyle.Render("  同步于 " + m.lastSync.Format("15:04:05")))
	}
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(helpStyle.Render("  队列为空\n"))
	}

	for i, it := range m.items {
		steps := make([]string, 0, len(it.Stuck.FailedCompensations))
		for _, fc := range it.Stuck.FailedCompensations {
			steps = append(steps, fc.Step)
		}
		line := fmt.Sprintf("%-38s %-10s %-14s %-5s %s",
			it.ID, it.Stuck.UserID, it.Stuck.AssetID, it.Stuck.Side,
			strings.Join(steps, ","))

		switch {
		case i == m.cursor:
			line = selectedStyle.Render("> " + line)
		case it.ResolvedAt != nil:
			line = resolvedStyle.Render("  " + line + "  [" + it.ResolvedBy + "]")
		default:
			line = stuckStyle.Render("  " + line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(errStyle.Render("错误: "+m.lastErr.Error()) + "\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ 选择  r 标记已处理  a 切换全部  q 退出"))
	return b.String()
}

func main() {
	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		baseURL  = flag.String("server", getenv("SETTLE_API_URL", "http://127.0.0.1:8080"), "settlement API base URL")
		operator = flag.String("operator", getenv("SETTLE_OPERATOR", os.Getenv("USER")), "operator name recorded on resolve")
	)
	flag.Parse()

	if *operator == "" {
		fmt.Fprintln(os.Stderr, "operator is required (flag -operator or SETTLE_OPERATOR)")
		os.Exit(2)
	}

	api := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second)

	p := tea.NewProgram(initialModel(api, *operator), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("运行程序失败: %v", err)
	}
}
