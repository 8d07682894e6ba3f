// Package repl implements the Read-Eval-Print Loop for the Cedar language.
//
// The REPL provides an interactive interface for users to enter Cedar forms,
// have them evaluated, and see the results immediately. It uses the Charm libraries
// (Bubbletea, Bubbles, and Lipgloss) to create a modern, user-friendly terminal
// interface with features like syntax highlighting and command history.
//
// Key features:
//   - Interactive command input and execution
//   - Command history tracking
//   - Styled output with different colors for results and errors
//   - A persistent Engine (symbol table, globals, macros, scheduler) across commands
//
// The main entry point is the Start function, which initializes and runs the REPL
// with the given username.
package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nickwanninger/cedar/engine"
	"github.com/nickwanninger/cedar/object"
	"github.com/nickwanninger/cedar/stdlib"
)

const (
	// Prompt is the default prompt for the REPL
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode within the REPL.
	ContPrompt = ".. "
)

// Options contains configuration options for the REPL
type Options struct {
	NoColor bool // Disable syntax highlighting and colored output
	Debug   bool // Enable debug mode with more verbose output
}

// Start initializes and runs the REPL with the given username and options.
// It creates a new bubbletea program with an initial model and runs it.
// The username is displayed in the welcome message of the REPL.
// If an error occurs while running the program, it is printed to the console.
func Start(username string, options Options) {
	m, err := initialModel(username, options)
	if err != nil {
		fmt.Println("Error starting engine:", err)
		return
	}
	defer m.eng.Stop()

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
	}
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	// Error styles
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	parseErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	runtimeErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF8700")).
				Bold(true)

	errorTipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAF00"))

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	// Syntax highlighting styles
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	symbolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2"))

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	parenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	commentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

// ErrorType represents the type of error that occurred
type ErrorType int

const (
	// NoError indicates that no error occurred, typically used as a default or initial value for error handling.
	NoError ErrorType = iota

	// ParseError indicates an error that occurred while reading a form (unbalanced parens,
	// a bad numeric literal, an unterminated string).
	ParseError

	// RuntimeError signifies an error raised while compiling or running a form.
	RuntimeError
)

// Custom messages for async evaluation
type evalResultMsg struct {
	output    string
	isError   bool
	errorType ErrorType
	elapsed   time.Duration
}

// The model represents the state of the application
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	eng             *engine.Engine
	username        string
	evaluating      bool
	currentInput    string
	multilineBuffer string // Buffer for multiline input
	isMultiline     bool   // Flag to indicate if we're in multiline mode
	spinner         spinner.Model
	options         Options
}

// applyStyle applies a lipgloss style to a string, respecting the NoColor option
func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

// historyEntry represents a single entry in the REPL history
type historyEntry struct {
	input          string
	output         string
	isError        bool
	errorType      ErrorType
	evaluationTime time.Duration // Time taken to evaluate
}

// initialModel creates a new model with default values, booting a fresh Engine (symbol
// table, globals, macro table, scheduler) and registering the standard library onto it.
func initialModel(username string, options Options) (model, error) {
	eng, err := engine.New(nil)
	if err != nil {
		return model{}, err
	}
	stdlib.Register(eng)
	eng.Start()

	ti := textinput.New()
	ti.Placeholder = "Enter Cedar code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		textInput:       ti,
		history:         []historyEntry{},
		eng:             eng,
		username:        username,
		evaluating:      false,
		multilineBuffer: "",
		isMultiline:     false,
		spinner:         s,
		options:         options,
	}, nil
}

// Init is the first function that will be called
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced checks if brackets, braces, and parentheses are balanced in the input
func isBalanced(input string) bool {
	var stack []rune

	for _, char := range input {
		switch char {
		case '(', '{', '[':
			stack = append(stack, char)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}

	return len(stack) == 0
}

// evalCmd is a command that evaluates Cedar code asynchronously against the model's Engine
func evalCmd(input string, eng *engine.Engine, debug bool) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		result, err := eng.EvalString(input)

		var output string
		isError := false
		errorType := NoError

		if err != nil {
			isError = true
			errorType = classifyError(err)
			output = formatRuntimeError(err.Error())
		} else {
			str, strErr := eng.Machine.ToString(result)
			if strErr != nil {
				isError = true
				errorType = RuntimeError
				output = formatRuntimeError(strErr.Error())
			} else if s, ok := object.AsString(str); ok {
				output = s
			} else {
				output = "nil"
			}
		}

		elapsed := time.Since(start)

		if debug {
			fmt.Printf("DEBUG: eval time: %v\n", elapsed)
		}

		return evalResultMsg{
			output:    output,
			isError:   isError,
			errorType: errorType,
			elapsed:   elapsed,
		}
	}
}

// classifyError distinguishes a malformed-surface-syntax read failure from every other
// failure raised later in compiling or running a form.
func classifyError(err error) ErrorType {
	if strings.Contains(err.Error(), "parse error") {
		return ParseError
	}
	return RuntimeError
}

// formatError formats error messages.
func (m model) formatError(errorStyle *lipgloss.Style, entry *historyEntry, s *strings.Builder) {
	// Split the output to separate the error message from the tips
	parts := strings.Split(entry.output, "\nTips:")
	if len(parts) > 1 {
		if m.options.NoColor {
			s.WriteString(parts[0])
			s.WriteString("\n")
			s.WriteString("Tips:" + parts[1])
		} else {
			s.WriteString(errorStyle.Render(parts[0]))
			s.WriteString("\n")
			s.WriteString(errorTipStyle.Render("Tips:" + parts[1]))
		}
	} else {
		if m.options.NoColor {
			s.WriteString(entry.output)
		} else {
			s.WriteString(errorStyle.Render(entry.output))
		}
	}
}

// Update handles all the updates to our model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		// Evaluation completed
		m.evaluating = false

		// Add to history
		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			isError:        msg.isError,
			errorType:      msg.errorType,
			evaluationTime: msg.elapsed,
		})

		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		// If we're evaluating, ignore key presses except for Ctrl+C
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			if input == "" {
				// If we're in multiline mode and the user enters an empty line, evaluate the buffer
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}

					// Start evaluation in the background
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.textInput.SetValue("")
					m.isMultiline = false

					// Reset the buffer after evaluation
					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, evalCmd(buffer, m.eng, m.options.Debug)
				}
				return m, nil
			}

			// If we're in multiline mode, append the input to the buffer
			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")

				// Check if brackets are now balanced
				if isBalanced(m.multilineBuffer) {
					// Start evaluation in the background
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.isMultiline = false

					// Reset the buffer after evaluation
					buffer := m.multilineBuffer
					m.multilineBuffer = ""

					return m, evalCmd(buffer, m.eng, m.options.Debug)
				}

				return m, nil
			}

			// Check if the input has balanced brackets
			if !isBalanced(input) {
				// Enter multiline mode
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			// Start evaluation in the background
			m.evaluating = true
			m.currentInput = input
			m.textInput.SetValue("")

			return m, evalCmd(input, m.eng, m.options.Debug)
		}
	}

	// Only update the text input if we're not evaluating
	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}

	// Ensure the spinner keeps ticking while evaluating
	if m.evaluating {
		return m, m.spinner.Tick
	}

	return m, cmd
}

// View renders the current UI
func (m model) View() string {
	var s strings.Builder

	// Title
	s.WriteString(m.applyStyle(titleStyle, " Cedar REPL "))
	s.WriteString("\n")

	// Welcome message
	if m.username != "" {
		s.WriteString(fmt.Sprintf("\nHello %s! Feel free to type in forms\n", m.username))
	}
	s.WriteString("\n")

	// History
	for _, entry := range m.history {
		// Handle multiline input in history
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlightCode(line))
			s.WriteString("\n")
		}

		if entry.isError {
			// Use different styles based on the error type
			switch entry.errorType {
			case ParseError:
				m.formatError(&parseErrorStyle, &entry, &s)
			case RuntimeError:
				m.formatError(&runtimeErrorStyle, &entry, &s)
			default:
				if m.options.NoColor {
					s.WriteString(entry.output)
				} else {
					s.WriteString(errorStyle.Render(entry.output))
				}
			}
		} else {
			if m.options.NoColor {
				s.WriteString(entry.output)
			} else {
				s.WriteString(resultStyle.Render(entry.output))
			}
		}

		// Show evaluation time if it took more than 10 ms
		if entry.evaluationTime > 10*time.Millisecond {
			timeStr := fmt.Sprintf(" (%.2fs)", entry.evaluationTime.Seconds())
			if m.options.NoColor {
				s.WriteString(timeStr)
			} else {
				s.WriteString(historyStyle.Render(timeStr))
			}
		}

		s.WriteString("\n\n")
	}

	// Current evaluation
	if m.evaluating {
		if m.options.NoColor {
			s.WriteString(Prompt)
		} else {
			s.WriteString(promptStyle.Render(Prompt))
		}
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Evaluating...")
		s.WriteString("\n\n")
	}

	// Show multiline buffer if in multiline mode
	if m.isMultiline && !m.evaluating {
		if m.options.NoColor {
			s.WriteString("Current multiline input:\n")
		} else {
			s.WriteString(historyStyle.Render("Current multiline input:\n"))
		}
		// Instead of splitting by lines, highlight the entire buffer for proper indentation
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	// Input
	if !m.evaluating {
		// Set the appropriate prompt based on whether we're in multiline mode
		if m.isMultiline {
			if m.options.NoColor {
				m.textInput.Prompt = ContPrompt
			} else {
				m.textInput.Prompt = promptStyle.Render(ContPrompt)
			}
		} else {
			if m.options.NoColor {
				m.textInput.Prompt = Prompt
			} else {
				m.textInput.Prompt = promptStyle.Render(Prompt)
			}
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	// Help text
	helpText := "\nPress Esc or Ctrl+C/D to exit"
	if m.isMultiline {
		helpText += " | Multiline mode: Enter empty line to evaluate or continue typing"
	} else {
		helpText += " | Multiline input supported for unbalanced brackets"
	}
	if m.options.NoColor {
		s.WriteString(helpText)
	} else {
		s.WriteString(historyStyle.Render(helpText))
	}

	return s.String()
}

// formatRuntimeError formats an error into a string with improved readability, with tips
// tailored to the kind of failure the error message names.
func formatRuntimeError(errorMsg string) string {
	var s strings.Builder
	s.WriteString("Error:\n")
	s.WriteString("  " + errorMsg + "\n")

	s.WriteString("\nTips:\n")

	//nolint:gocritic
	if strings.Contains(errorMsg, "is unbound") {
		s.WriteString("  • Check if the symbol is defined with def before use\n")
		s.WriteString("  • Verify the name is spelled correctly\n")
	} else if strings.Contains(errorMsg, "arity error") {
		s.WriteString("  • Check the call has the correct number of arguments\n")
		s.WriteString("  • Verify the fn's parameter list matches its usage\n")
	} else if strings.Contains(errorMsg, "type error") {
		s.WriteString("  • Check the receiver's type supports this operation\n")
	} else if strings.Contains(errorMsg, "index error") {
		s.WriteString("  • Verify the index is within bounds for the vector/string\n")
	} else if strings.Contains(errorMsg, "unterminated") || strings.Contains(errorMsg, "unexpected") {
		s.WriteString("  • Check for missing or extra parentheses, brackets, or braces\n")
		s.WriteString("  • Verify strings are properly closed\n")
	} else {
		s.WriteString("  • Review the form's logic\n")
		s.WriteString("  • Consider breaking a complex form into simpler steps\n")
	}

	return s.String()
}

// cedarKeywords are the special forms and literal names highlighted like keywords;
// anything else in symbol position is rendered as an ordinary symbol.
var cedarKeywords = map[string]bool{
	"def": true, "def-macro": true, "fn": true, "if": true, "do": true,
	"quote": true, "true": true, "false": true, "nil": true,
}

// highlightCode applies lightweight syntax highlighting to a line of Cedar source, scanning
// character by character rather than through the reader so that unbalanced or partial
// multiline input (which the reader would reject) still highlights sensibly.
func (m model) highlightCode(code string) string {
	var s strings.Builder
	i := 0
	for i < len(code) {
		ch := code[i]
		switch {
		case ch == ';':
			rest := code[i:]
			if m.options.NoColor {
				s.WriteString(rest)
			} else {
				s.WriteString(commentStyle.Render(rest))
			}
			i = len(code)
		case ch == '"':
			start := i
			i++
			for i < len(code) && code[i] != '"' {
				if code[i] == '\\' && i+1 < len(code) {
					i++
				}
				i++
			}
			if i < len(code) {
				i++
			}
			lit := code[start:i]
			if m.options.NoColor {
				s.WriteString(lit)
			} else {
				s.WriteString(stringStyle.Render(lit))
			}
		case ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '{' || ch == '}':
			if m.options.NoColor {
				s.WriteByte(ch)
			} else {
				s.WriteString(parenStyle.Render(string(ch)))
			}
			i++
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == ',':
			s.WriteByte(ch)
			i++
		default:
			start := i
			for i < len(code) && !isAtomDelimiter(code[i]) {
				i++
			}
			atom := code[start:i]
			if atom == "" {
				s.WriteByte(code[i])
				i++
				continue
			}
			s.WriteString(m.renderAtom(atom))
		}
	}
	return s.String()
}

func isAtomDelimiter(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', ',', '(', ')', '[', ']', '{', '}', '"', ';':
		return true
	}
	return false
}

// renderAtom styles a single atom as a keyword, numeric literal, or plain symbol.
func (m model) renderAtom(atom string) string {
	if m.options.NoColor {
		return atom
	}
	if cedarKeywords[atom] {
		return keywordStyle.Render(atom)
	}
	if isNumericAtom(atom) {
		return literalStyle.Render(atom)
	}
	return symbolStyle.Render(atom)
}

func isNumericAtom(atom string) bool {
	if atom == "" {
		return false
	}
	start := 0
	if atom[0] == '-' || atom[0] == '+' {
		start = 1
	}
	if start == len(atom) {
		return false
	}
	for _, c := range atom[start:] {
		if (c < '0' || c > '9') && c != '.' {
			return false
		}
	}
	return true
}
