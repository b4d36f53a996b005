package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/manash/polychat/internal/display"
	"github.com/manash/polychat/internal/media"
	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/pkg/models"
)

type REPL struct {
	in       io.Reader
	out      io.Writer
	err      io.Writer
	engine   *orchestrator.Engine
	saver    *media.Saver
	preview  *display.Previewer
	commands map[string]Command
	ordered  []Command
	running  bool

	progressMu   sync.Mutex
	lastProgress string
}

type Config struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Engine *orchestrator.Engine
	Saver  *media.Saver
	// Preview draws generated images inline; nil disables it.
	Preview *display.Previewer
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:       cfg.In,
		out:      cfg.Out,
		err:      cfg.Err,
		engine:   cfg.Engine,
		saver:    cfg.Saver,
		preview:  cfg.Preview,
		commands: make(map[string]Command),
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	unsubscribe := r.engine.Subscribe(r.showProgress)
	defer unsubscribe()

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return scanner.Err()
}

// execute runs a command. A line that does not start with a command name is
// sent as a prompt to the current mode.
func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmd, ok := r.commands[strings.ToLower(parts[0])]
	if !ok {
		return r.submit(ctx, line)
	}
	return cmd.Execute(ctx, r, parts[1:])
}

func (r *REPL) submit(ctx context.Context, prompt string) error {
	var name string
	switch r.engine.Snapshot().Mode {
	case models.ModeCompare:
		name = "compare"
	case models.ModeImageGeneration:
		name = "image"
	case models.ModeVideoGeneration:
		name = "video"
	case models.ModeAppBuilder:
		name = "build"
	default:
		name = "chat"
	}
	return r.commands[name].Execute(ctx, r, []string{prompt})
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "polychat interactive mode")
	fmt.Fprintln(r.out, "Type a message to send it, 'help' for commands, 'quit' to exit.")
	if user := r.engine.Snapshot().UserID; user != "" {
		fmt.Fprintf(r.out, "Signed in as %s.\n", user)
	} else {
		fmt.Fprintln(r.out, "Not signed in: chats will not be saved. Run 'polychat login' first.")
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	s := r.engine.Snapshot()
	fmt.Fprintf(r.out, "polychat [%s: %s]> ", s.Mode, strings.Join(s.SelectedIDs, ","))
}

// showProgress prints each new progress message once.
func (r *REPL) showProgress(s orchestrator.State) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	if s.Progress == "" || s.Progress == r.lastProgress {
		r.lastProgress = s.Progress
		return
	}
	r.lastProgress = s.Progress
	fmt.Fprintf(r.out, "  %s\n", s.Progress)
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
