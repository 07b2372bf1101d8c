package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrNoCredential is returned when a non-interactive prompter has nothing to offer.
var ErrNoCredential = errors.New("no credential available")

// ErrPromptAborted is returned when the operator cancels the terminal prompt.
var ErrPromptAborted = errors.New("prompt aborted")

var promptStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("205")).
	Bold(true)

// Static always answers with the same value.
type Static string

// Prompt implements Prompter.
func (s Static) Prompt(ctx context.Context, req Request) (string, error) {
	return string(s), nil
}

// Env answers from GETOBS_<KEY> environment variables.
type Env struct {
	Lookup func(string) (string, bool)
}

// EnvVar returns the variable consulted for key, e.g. GETOBS_EOSDIS_TOKEN.
func EnvVar(key string) string {
	up := strings.ToUpper(key)
	return "GETOBS_" + strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, up)
}

// Prompt implements Prompter.
func (e Env) Prompt(ctx context.Context, req Request) (string, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvVar(req.Key)); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s not set", ErrNoCredential, EnvVar(req.Key))
}

// Chain tries each prompter in order until one succeeds.
type Chain []Prompter

// Prompt implements Prompter.
func (c Chain) Prompt(ctx context.Context, req Request) (string, error) {
	var errs []error
	for _, p := range c {
		v, err := p.Prompt(ctx, req)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	return "", errors.Join(append([]error{ErrNoCredential}, errs...)...)
}

// Terminal asks on the controlling terminal with a single-line text input.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// Prompt implements Prompter. It blocks until the operator submits or ctx is done.
func (t Terminal) Prompt(ctx context.Context, req Request) (string, error) {
	in, out := t.In, t.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}

	m := newPromptModel(req)
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", err
	}

	pm := final.(*promptModel)
	if pm.aborted {
		return "", ErrPromptAborted
	}
	return pm.value, nil
}

// promptModel is a one-shot text input.
type promptModel struct {
	label   string
	input   textinput.Model
	value   string
	aborted bool
}

func newPromptModel(req Request) *promptModel {
	ti := textinput.New()
	ti.Placeholder = req.Key
	ti.CharLimit = 0
	ti.Width = 60
	if req.Secret {
		ti.EchoMode = textinput.EchoPassword
	}
	ti.Focus()
	return &promptModel{label: req.Text, input: ti}
}

// Init implements tea.Model
func (m *promptModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m *promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.value = m.input.Value()
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *promptModel) View() string {
	if m.value != "" || m.aborted {
		return ""
	}
	return promptStyle.Render(m.label) + "\n" + m.input.View() + "\n"
}
