// envsetup provides a lightweight .env configuration wizard.
// It runs automatically on first bot startup when no .env file exists,
// collecting the Discord token, LLM credentials, and the admin user ID.
package envsetup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type step int

const (
	stepWelcome step = iota
	stepDiscord
	stepLLMProvider
	stepLLMKey
	stepAdmin
	stepConfirm
	stepDone
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type model struct {
	step         step
	input        textinput.Model
	discordToken string
	llmProvider  string
	llmAPIKey    string
	adminID      string
	err          error
}

func New() model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 200
	input.Focus()
	return model{
		step:  stepWelcome,
		input: input,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	m.err = nil
	value := strings.TrimSpace(m.input.Value())

	switch m.step {
	case stepWelcome:
		m.step = stepDiscord
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoPassword

	case stepDiscord:
		if value == "" {
			m.err = fmt.Errorf("Discord token is required")
			return m, nil
		}
		m.discordToken = value
		m.step = stepLLMProvider
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoNormal

	case stepLLMProvider:
		choice := strings.ToLower(value)
		switch choice {
		case "1", "anthropic":
			m.llmProvider = "anthropic"
		case "2", "google":
			m.llmProvider = "google"
		default:
			m.err = fmt.Errorf("Please enter 1 for Anthropic or 2 for Google")
			return m, nil
		}
		m.step = stepLLMKey
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoPassword

	case stepLLMKey:
		if value == "" {
			m.err = fmt.Errorf("API key is required")
			return m, nil
		}
		m.llmAPIKey = value
		m.step = stepAdmin
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoNormal

	case stepAdmin:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			m.err = fmt.Errorf("Admin ID must be a numeric Discord user ID")
			return m, nil
		}
		m.adminID = value
		m.step = stepConfirm
		m.input.SetValue("")

	case stepConfirm:
		choice := strings.ToLower(value)
		if choice == "y" || choice == "yes" || choice == "" {
			if err := m.writeEnvFile(); err != nil {
				m.err = err
				return m, nil
			}
			m.step = stepDone
			return m, tea.Quit
		} else if choice == "n" || choice == "no" {
			reset := New()
			return reset, nil
		}
	}

	return m, nil
}

func (m model) writeEnvFile() error {
	var llmModel, llmKeyName string
	if m.llmProvider == "anthropic" {
		llmModel = "claude-sonnet-4-5-20250929"
		llmKeyName = "ANTHROPIC_API_KEY"
	} else {
		llmModel = "gemini-2.0-flash"
		llmKeyName = "GOOGLE_API_KEY"
	}

	content := fmt.Sprintf(`DISCORD_TOKEN=%s
LLM_PROVIDER=%s
LLM_MODEL=%s
%s=%s
ADMIN_IDS=%s
DATA_DIR=./data
`, m.discordToken, m.llmProvider, llmModel, llmKeyName, m.llmAPIKey, m.adminID)

	return os.WriteFile(".env", []byte(content), 0600)
}

func (m model) View() string {
	var s strings.Builder

	switch m.step {
	case stepWelcome:
		s.WriteString(titleStyle.Render("Quotabot - Env Setup"))
		s.WriteString("\n\n")
		s.WriteString("This wizard will help you configure the bot.\n")
		s.WriteString("You'll need:\n\n")
		s.WriteString("  - A Discord bot token\n")
		s.WriteString("  - An LLM API key (Anthropic or Google)\n")
		s.WriteString("  - Your Discord user ID (for admin commands)\n")
		s.WriteString("\n")
		s.WriteString(dimStyle.Render("Press Enter to continue, Ctrl+C to exit"))

	case stepDiscord:
		s.WriteString(titleStyle.Render("Step 1: Discord Bot Token"))
		s.WriteString("\n\n")
		s.WriteString("To get your Discord bot token:\n\n")
		s.WriteString("  1. Go to " + linkStyle.Render("https://discord.com/developers/applications") + "\n")
		s.WriteString("  2. Create a new application (or select existing)\n")
		s.WriteString("  3. Go to the Bot section and click 'Reset Token'\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Paste your Discord token here:"))
		s.WriteString("\n")
		s.WriteString(m.input.View())

	case stepLLMProvider:
		s.WriteString(titleStyle.Render("Step 2: Choose LLM Provider"))
		s.WriteString("\n\n")
		s.WriteString("Which LLM provider would you like to use?\n\n")
		s.WriteString("  1. Anthropic (Claude)\n")
		s.WriteString("  2. Google (Gemini)\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter 1 or 2:"))
		s.WriteString("\n")
		s.WriteString(m.input.View())

	case stepLLMKey:
		s.WriteString(titleStyle.Render("Step 3: LLM API Key"))
		s.WriteString("\n\n")
		if m.llmProvider == "anthropic" {
			s.WriteString("Get your key at " + linkStyle.Render("https://console.anthropic.com") + "\n")
		} else {
			s.WriteString("Get your key at " + linkStyle.Render("https://aistudio.google.com/apikey") + "\n")
		}
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Paste your API key here:"))
		s.WriteString("\n")
		s.WriteString(m.input.View())

	case stepAdmin:
		s.WriteString(titleStyle.Render("Step 4: Admin User ID"))
		s.WriteString("\n\n")
		s.WriteString("Your numeric Discord user ID. With Developer Mode enabled,\n")
		s.WriteString("right-click your name and choose 'Copy User ID'.\n")
		s.WriteString("This account can change limits and manage VIP users.\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Enter your user ID:"))
		s.WriteString("\n")
		s.WriteString(m.input.View())

	case stepConfirm, stepDone:
		s.WriteString(titleStyle.Render("Configuration Complete"))
		s.WriteString("\n\n")
		s.WriteString("Your configuration:\n\n")
		s.WriteString("  Discord:      " + successStyle.Render(maskToken(m.discordToken)) + "\n")
		s.WriteString("  LLM Provider: " + successStyle.Render(m.llmProvider) + "\n")
		s.WriteString("  LLM API Key:  " + successStyle.Render(maskToken(m.llmAPIKey)) + "\n")
		s.WriteString("  Admin ID:     " + successStyle.Render(m.adminID) + "\n")
		s.WriteString("  Data dir:     " + successStyle.Render("./data") + "\n")
		s.WriteString("\n")
		s.WriteString(labelStyle.Render("Save this configuration? [Y/n]:"))
		s.WriteString("\n")
		s.WriteString(m.input.View())
	}

	if m.err != nil {
		s.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}

	s.WriteString("\n")
	return s.String()
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Run starts the setup wizard and returns true if a .env file was written.
func Run() (bool, error) {
	p := tea.NewProgram(New())
	finalModel, err := p.Run()
	if err != nil {
		return false, err
	}

	m := finalModel.(model)
	return m.step == stepDone, nil
}

// NeedsSetup checks if .env file exists
func NeedsSetup() bool {
	_, err := os.Stat(".env")
	return os.IsNotExist(err)
}
