package repl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/manash/polychat/internal/media"
	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	r.ordered = []Command{
		&ChatCommand{},
		&CompareCommand{},
		&ImageCommand{},
		&VideoCommand{},
		&BuildCommand{},
		&AttachCommand{},
		&DetachCommand{},
		&ModeCommand{},
		&TaskCommand{},
		&ModelCommand{},
		&ToggleCommand{},
		&ConfigCommand{},
		&SessionCommand{},
		&HistoryCommand{},
		&WhoamiCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range r.ordered {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// ensureMode switches to m unless the engine is already there.
func (r *REPL) ensureMode(ctx context.Context, m models.Mode) error {
	if r.engine.Snapshot().Mode == m {
		return nil
	}
	if err := r.engine.SetMode(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Switched to %s mode (%s)\n", m, modelName(r.engine.Snapshot()))
	return nil
}

func modelName(s orchestrator.State) string {
	if m := s.Model(); m != nil {
		return m.Name
	}
	return "none"
}

// ChatCommand sends a message to the selected model
type ChatCommand struct{}

func (c *ChatCommand) Name() string        { return "chat" }
func (c *ChatCommand) Aliases() []string   { return []string{"say"} }
func (c *ChatCommand) Description() string { return "Send a message to the selected model" }
func (c *ChatCommand) Usage() string       { return "chat <message>" }

func (c *ChatCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.ensureMode(ctx, models.ModeChat); err != nil {
		return err
	}

	reply, err := r.engine.SendMessage(ctx, strings.Join(args, " "))
	if reply.ID == "" {
		return err
	}
	fmt.Fprintf(r.out, "\n%s:\n%s\n\n", modelName(r.engine.Snapshot()), reply.Content)
	if err != nil {
		return errors.New(orchestrator.ChatFailure)
	}
	if w := r.engine.Sessions().LastWarning(); w != nil {
		fmt.Fprintf(r.err, "Warning: %v\n", w)
	}
	return nil
}

// CompareCommand sends one prompt to every selected model
type CompareCommand struct{}

func (c *CompareCommand) Name() string      { return "compare" }
func (c *CompareCommand) Aliases() []string { return []string{"cmp"} }
func (c *CompareCommand) Description() string {
	return "Send a prompt to all selected models side by side"
}
func (c *CompareCommand) Usage() string { return "compare <prompt>" }

func (c *CompareCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.ensureMode(ctx, models.ModeCompare); err != nil {
		return err
	}

	s := r.engine.Snapshot()
	fmt.Fprintf(r.out, "Asking %d model(s)...\n", len(s.Selected))
	results, err := r.engine.Compare(ctx, strings.Join(args, " "), nil)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Fprintf(r.out, "\n=== %s ===\n", res.Model.Name)
		if res.State == models.ResultFailed {
			fmt.Fprintf(r.out, "[failed] %s\n", res.Error)
			continue
		}
		fmt.Fprintln(r.out, res.Response)
	}
	fmt.Fprintln(r.out)
	return nil
}

// ImageCommand generates an image, or edits the attached one
type ImageCommand struct{}

func (c *ImageCommand) Name() string        { return "image" }
func (c *ImageCommand) Aliases() []string   { return []string{"img"} }
func (c *ImageCommand) Description() string { return "Generate an image, or edit the attached image" }
func (c *ImageCommand) Usage() string       { return "image <prompt>" }

func (c *ImageCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.ensureMode(ctx, models.ModeImageGeneration); err != nil {
		return err
	}

	s := r.engine.Snapshot()
	verb := "Generating"
	if s.InputMedia != nil {
		verb = "Editing"
	}
	fmt.Fprintf(r.out, "%s with %s...\n", verb, modelName(s))

	prompt := strings.Join(args, " ")
	img, err := r.engine.GenerateImage(ctx, prompt)
	if err != nil {
		return fmt.Errorf("image generation failed: %w", err)
	}
	path, err := r.saver.SaveImage(img, prompt, "")
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	fmt.Fprintf(r.out, "Saved: %s (%s)\n", path, humanize.Bytes(uint64(len(img.Data))))
	if r.preview.Enabled() {
		if err := r.preview.Show(img); err != nil {
			fmt.Fprintf(r.err, "Preview failed: %v\n", err)
		}
	}
	return nil
}

// VideoCommand generates a short video clip
type VideoCommand struct{}

func (c *VideoCommand) Name() string      { return "video" }
func (c *VideoCommand) Aliases() []string { return []string{"vid"} }
func (c *VideoCommand) Description() string {
	return "Generate a video, seeded by the attached image if any"
}
func (c *VideoCommand) Usage() string { return "video <prompt>" }

func (c *VideoCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.ensureMode(ctx, models.ModeVideoGeneration); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Generating video with %s. This can take a few minutes.\n", modelName(r.engine.Snapshot()))
	prompt := strings.Join(args, " ")
	video, err := r.engine.GenerateVideo(ctx, prompt)
	if err != nil {
		return fmt.Errorf("video generation failed: %w", err)
	}
	path, err := r.saver.SaveVideo(ctx, video, prompt, "")
	if err != nil {
		return fmt.Errorf("failed to save video: %w", err)
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

// BuildCommand generates a small web app
type BuildCommand struct{}

func (c *BuildCommand) Name() string        { return "build" }
func (c *BuildCommand) Aliases() []string   { return nil }
func (c *BuildCommand) Description() string { return "Generate a single-page web app" }
func (c *BuildCommand) Usage() string       { return "build <description>" }

func (c *BuildCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.ensureMode(ctx, models.ModeAppBuilder); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Building with %s...\n", modelName(r.engine.Snapshot()))
	prompt := strings.Join(args, " ")
	app, err := r.engine.BuildApp(ctx, prompt)
	if err != nil {
		return fmt.Errorf("app build failed: %w", err)
	}
	path, err := r.saver.SaveApp(app, prompt, "")
	if err != nil {
		return fmt.Errorf("failed to save app: %w", err)
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

// AttachCommand loads an image to edit or to seed a video
type AttachCommand struct{}

func (c *AttachCommand) Name() string      { return "attach" }
func (c *AttachCommand) Aliases() []string { return []string{"upload"} }
func (c *AttachCommand) Description() string {
	return "Attach an image for editing or video generation"
}
func (c *AttachCommand) Usage() string { return "attach <path>" }

func (c *AttachCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	mode := r.engine.Snapshot().Mode
	if mode != models.ModeImageGeneration && mode != models.ModeVideoGeneration {
		return fmt.Errorf("%w: switch to image or video mode first", orchestrator.ErrWrongMode)
	}

	in, err := media.LoadInputMedia(args[0])
	if err != nil {
		return err
	}
	if err := r.engine.SetInputMedia(in); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Attached %s (%s, %s)\n", args[0], in.MIMEType, humanize.Bytes(uint64(len(in.Data))))
	return nil
}

// DetachCommand drops the attached image
type DetachCommand struct{}

func (c *DetachCommand) Name() string        { return "detach" }
func (c *DetachCommand) Aliases() []string   { return nil }
func (c *DetachCommand) Description() string { return "Remove the attached image" }
func (c *DetachCommand) Usage() string       { return "detach" }

func (c *DetachCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.engine.ClearInputMedia()
	fmt.Fprintln(r.out, "Attachment removed")
	return nil
}

// ModeCommand shows or changes the interaction mode
type ModeCommand struct{}

func (c *ModeCommand) Name() string      { return "mode" }
func (c *ModeCommand) Aliases() []string { return nil }
func (c *ModeCommand) Description() string {
	return "Get or set the mode (chat, compare, image, video, build)"
}
func (c *ModeCommand) Usage() string { return "mode [name]" }

func (c *ModeCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		s := r.engine.Snapshot()
		fmt.Fprintf(r.out, "Current mode: %s\n", s.Mode)
		fmt.Fprintf(r.out, "Available: %v\n", models.AllModes())
		return nil
	}

	m, err := models.ParseMode(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if err := r.engine.SetMode(ctx, m); err != nil {
		return err
	}
	s := r.engine.Snapshot()
	fmt.Fprintf(r.out, "Mode set to: %s (%s)\n", s.Mode, strings.Join(s.SelectedIDs, ", "))
	return nil
}

// TaskCommand lists or launches task shortcuts
type TaskCommand struct{}

func (c *TaskCommand) Name() string        { return "task" }
func (c *TaskCommand) Aliases() []string   { return []string{"tasks"} }
func (c *TaskCommand) Description() string { return "List tasks, or launch one" }
func (c *TaskCommand) Usage() string       { return "task [id]" }

func (c *TaskCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	reg := r.engine.Registry()
	if len(args) == 0 {
		for _, t := range reg.Tasks() {
			fmt.Fprintf(r.out, "  %-18s %-24s %s\n", t.ID, t.Name, t.Description)
		}
		return nil
	}

	if err := r.engine.LaunchTask(ctx, args[0]); err != nil {
		return err
	}
	s := r.engine.Snapshot()
	fmt.Fprintf(r.out, "Task %s: %s mode with %s\n", args[0], s.Mode, modelName(s))
	return nil
}

// ModelCommand shows the catalog or replaces the selection
type ModelCommand struct{}

func (c *ModelCommand) Name() string        { return "model" }
func (c *ModelCommand) Aliases() []string   { return []string{"models", "m"} }
func (c *ModelCommand) Description() string { return "List models, or select one or more" }
func (c *ModelCommand) Usage() string       { return "model [id...]" }

func (c *ModelCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		s := r.engine.Snapshot()
		selected := make(map[string]bool, len(s.SelectedIDs))
		for _, id := range s.SelectedIDs {
			selected[id] = true
		}
		fmt.Fprintf(r.out, "Models for %s mode:\n", s.Mode)
		want := s.Mode.RequiredCapability()
		for _, m := range r.engine.Registry().List() {
			if !m.Has(want) {
				continue
			}
			marker := "  "
			if selected[m.ID] {
				marker = "> "
			}
			extra := ""
			if m.Premium {
				extra = " [pro]"
			}
			fmt.Fprintf(r.out, "%s%-14s %-22s (%s)%s\n", marker, m.ID, m.Name, m.Provider, extra)
		}
		return nil
	}

	if err := r.engine.SelectModels(args); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Selected: %s\n", strings.Join(r.engine.Snapshot().SelectedIDs, ", "))
	return nil
}

// ToggleCommand adds or removes a model from the comparison set
type ToggleCommand struct{}

func (c *ToggleCommand) Name() string      { return "toggle" }
func (c *ToggleCommand) Aliases() []string { return []string{"tg"} }
func (c *ToggleCommand) Description() string {
	return "Add or remove a model (compare) or switch model (other modes)"
}
func (c *ToggleCommand) Usage() string { return "toggle <id>" }

func (c *ToggleCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if err := r.engine.ToggleModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Selected: %s\n", strings.Join(r.engine.Snapshot().SelectedIDs, ", "))
	return nil
}

// ConfigCommand shows or edits the generation settings
type ConfigCommand struct{}

func (c *ConfigCommand) Name() string        { return "config" }
func (c *ConfigCommand) Aliases() []string   { return []string{"cfg"} }
func (c *ConfigCommand) Description() string { return "Show or change generation settings" }
func (c *ConfigCommand) Usage() string {
	return "config [" + strings.Join(models.ConfigFields(), "|") + " <value>]"
}

func (c *ConfigCommand) Execute(_ context.Context, r *REPL, args []string) error {
	switch len(args) {
	case 0:
		printConfig(r, r.engine.Snapshot().Config)
		return nil
	case 2:
		cfg, err := r.engine.UpdateConfigField(args[0], args[1])
		if err != nil {
			return err
		}
		printConfig(r, cfg)
		return nil
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
}

func printConfig(r *REPL, cfg models.GenerationConfig) {
	fmt.Fprintf(r.out, "  temperature        %.2f\n", cfg.Temperature)
	fmt.Fprintf(r.out, "  top-p              %.2f\n", cfg.TopP)
	fmt.Fprintf(r.out, "  top-k              %d\n", cfg.TopK)
	fmt.Fprintf(r.out, "  max-output-tokens  %d\n", cfg.MaxOutputTokens)
}

// SessionCommand manages chat sessions
type SessionCommand struct{}

func (c *SessionCommand) Name() string      { return "session" }
func (c *SessionCommand) Aliases() []string { return []string{"sessions", "sess"} }
func (c *SessionCommand) Description() string {
	return "Manage chats (list, new, load, rename, delete)"
}
func (c *SessionCommand) Usage() string { return "session <list|new|load|rename|delete> [args]" }

func (c *SessionCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return c.list(r)
	}

	subCmd := strings.ToLower(args[0])
	subArgs := args[1:]

	switch subCmd {
	case "list", "ls":
		return c.list(r)
	case "new":
		if err := r.engine.NewSession(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Started a new chat")
		return nil
	case "load", "select":
		if len(subArgs) == 0 {
			return fmt.Errorf("usage: session load <id>")
		}
		return c.load(ctx, r, subArgs[0])
	case "rename":
		if len(subArgs) < 2 {
			return fmt.Errorf("usage: session rename <id> <title>")
		}
		id, err := c.resolve(r, subArgs[0])
		if err != nil {
			return err
		}
		if err := r.engine.Sessions().Rename(ctx, id, strings.Join(subArgs[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Chat renamed")
		return nil
	case "delete", "rm":
		if len(subArgs) == 0 {
			return fmt.Errorf("usage: session delete <id>")
		}
		id, err := c.resolve(r, subArgs[0])
		if err != nil {
			return err
		}
		if err := r.engine.DeleteSession(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Chat deleted")
		return nil
	default:
		return fmt.Errorf("unknown session command: %s", subCmd)
	}
}

func (c *SessionCommand) list(r *REPL) error {
	sessions := r.engine.Sessions().Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "No chats yet")
		return nil
	}

	activeID := r.engine.Snapshot().ActiveSessionID
	fmt.Fprintf(r.out, "%-10s  %-42s  %-16s  %s\n", "ID", "Title", "Updated", "Messages")
	fmt.Fprintln(r.out, strings.Repeat("-", 82))
	for _, sess := range sessions {
		marker := "  "
		if sess.ID == activeID {
			marker = "> "
		}
		fmt.Fprintf(r.out, "%s%-8s  %-42s  %-16s  %d\n",
			marker,
			shortID(sess.ID),
			truncate(sess.Title, 42),
			humanize.Time(sess.UpdatedAt),
			len(sess.Messages))
	}
	return nil
}

// resolve expands an id prefix to a full session id.
func (c *SessionCommand) resolve(r *REPL, prefix string) (string, error) {
	var found string
	for _, sess := range r.engine.Sessions().Sessions() {
		if strings.HasPrefix(sess.ID, prefix) {
			if found != "" {
				return "", fmt.Errorf("ambiguous session id: %s", prefix)
			}
			found = sess.ID
		}
	}
	if found == "" {
		return "", fmt.Errorf("session not found: %s", prefix)
	}
	return found, nil
}

func (c *SessionCommand) load(ctx context.Context, r *REPL, prefix string) error {
	id, err := c.resolve(r, prefix)
	if err != nil {
		return err
	}
	if err := r.engine.SelectSession(ctx, id); err != nil {
		return err
	}
	sess, _ := r.engine.Sessions().Session(id)
	fmt.Fprintf(r.out, "Loaded chat: %s (%d messages)\n", sess.Title, len(sess.Messages))
	return nil
}

// HistoryCommand prints the active chat
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "Show the messages of the active chat" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	sess := r.engine.Sessions().Active()
	if sess == nil || len(sess.Messages) == 0 {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	fmt.Fprintf(r.out, "%s\n\n", sess.Title)
	for _, msg := range sess.Messages {
		who := "you"
		if msg.Author == models.AuthorAssistant {
			who = msg.ModelID
			if m, ok := r.engine.Registry().Get(msg.ModelID); ok {
				who = m.Name
			}
		}
		fmt.Fprintf(r.out, "[%s] %s: %s\n", humanize.Time(msg.CreatedAt), who, msg.Content)
	}
	return nil
}

// WhoamiCommand shows the signed-in user
type WhoamiCommand struct{}

func (c *WhoamiCommand) Name() string        { return "whoami" }
func (c *WhoamiCommand) Aliases() []string   { return nil }
func (c *WhoamiCommand) Description() string { return "Show the signed-in user" }
func (c *WhoamiCommand) Usage() string       { return "whoami" }

func (c *WhoamiCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if user := r.engine.Snapshot().UserID; user != "" {
		fmt.Fprintln(r.out, user)
		return nil
	}
	fmt.Fprintln(r.out, "Not signed in")
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range r.ordered {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "                        Usage: %s\n", cmd.Usage())
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Any other input is sent as a prompt in the current mode. Start with 'say' to send text that begins with a command name.")

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
