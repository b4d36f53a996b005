package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/manash/polychat/internal/auth"
	"github.com/manash/polychat/internal/kvstore"
	"github.com/manash/polychat/internal/session"
	"github.com/manash/polychat/pkg/models"
)

// withUsers opens only the database, for commands that never call a model.
func (app *App) withUsers(fn func(ctx context.Context, store kvstore.Store, users *auth.Directory) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := app.loadConfig()
	if err != nil {
		return err
	}
	store, err := app.openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store, app.newDirectory(store))
}

func (app *App) credentials(args []string) (string, string, error) {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		u, err := app.ReadPassword("Username: ")
		if err != nil {
			return "", "", err
		}
		username = u
	}
	password, err := app.ReadPassword("Password: ")
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(username), password, nil
}

func newSignupCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signup [username]",
		Short: "Create an account and sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := app.credentials(args)
			if err != nil {
				return err
			}
			return app.withUsers(func(ctx context.Context, _ kvstore.Store, users *auth.Directory) error {
				name, err := users.SignUp(ctx, username, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Signed up and signed in as %s.\n", name)
				return nil
			})
		},
	}
}

func newLoginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := app.credentials(args)
			if err != nil {
				return err
			}
			return app.withUsers(func(ctx context.Context, _ kvstore.Store, users *auth.Directory) error {
				name, err := users.Login(ctx, username, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Signed in as %s.\n", name)
				return nil
			})
		},
	}
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withUsers(func(ctx context.Context, _ kvstore.Store, users *auth.Directory) error {
				if err := users.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, "Signed out.")
				return nil
			})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withUsers(func(ctx context.Context, _ kvstore.Store, users *auth.Directory) error {
				name, err := users.Current(ctx)
				if err != nil {
					return err
				}
				if name == "" {
					fmt.Fprintln(app.Out, "Not signed in.")
					return nil
				}
				fmt.Fprintln(app.Out, name)
				return nil
			})
		},
	}
}

func newModelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models and task shortcuts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.loadConfig()
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}

			fmt.Fprintln(app.Out, "Models:")
			for _, m := range reg.List() {
				caps := make([]string, len(m.Capabilities))
				for i, c := range m.Capabilities {
					caps[i] = string(c)
				}
				premium := ""
				if m.Premium {
					premium = " [pro]"
				}
				fmt.Fprintf(app.Out, "  %-10s %-22s %-10s %s%s\n", m.ID, m.Name, m.Provider, strings.Join(caps, ","), premium)
			}

			fmt.Fprintln(app.Out, "\nTasks:")
			for _, t := range reg.Tasks() {
				premium := ""
				if t.Premium {
					premium = " [pro]"
				}
				fmt.Fprintf(app.Out, "  %-10s %-22s %s via %s%s\n", t.ID, t.Name, t.TargetMode, t.RecommendedModel, premium)
			}
			return nil
		},
	}
}

func newSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the signed-in user's chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSessions(func(ctx context.Context, m *session.Manager) error {
				list := m.Sessions()
				if len(list) == 0 {
					fmt.Fprintln(app.Out, "No chats yet.")
					return nil
				}
				active := m.ActiveID()
				for _, s := range list {
					marker := "  "
					if s.ID == active {
						marker = "> "
					}
					fmt.Fprintf(app.Out, "%s%s  %-40s %3d msgs  %s\n",
						marker, shortID(s.ID), s.Title, len(s.Messages), humanize.Time(s.UpdatedAt))
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSessions(func(ctx context.Context, m *session.Manager) error {
				s, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "%s\n\n", s.Title)
				for _, msg := range s.Messages {
					who := "you"
					if msg.Author == models.AuthorAssistant {
						who = msg.ModelID
					}
					fmt.Fprintf(app.Out, "[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), who, msg.Content)
				}
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSessions(func(ctx context.Context, m *session.Manager) error {
				s, err := resolveSession(m, args[0])
				if err != nil {
					return err
				}
				if err := m.Delete(ctx, s.ID); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Deleted %s.\n", s.Title)
				return m.LastWarning()
			})
		},
	}

	cmd.AddCommand(show, rm)
	return cmd
}

func (app *App) withSessions(fn func(ctx context.Context, m *session.Manager) error) error {
	return app.withUsers(func(ctx context.Context, store kvstore.Store, users *auth.Directory) error {
		name, err := users.Current(ctx)
		if err != nil {
			return err
		}
		if name == "" {
			return errors.New("not signed in: run 'polychat login' first")
		}
		cfg, err := app.loadConfig()
		if err != nil {
			return err
		}
		logger, err := app.newLogger(cfg)
		if err != nil {
			return err
		}
		m := session.NewManager(session.NewStore(store), logger)
		m.Load(ctx, name)
		return fn(ctx, m)
	})
}

// resolveSession accepts a full id or a unique prefix.
func resolveSession(m *session.Manager, ref string) (*models.ChatSession, error) {
	if s, ok := m.Session(ref); ok {
		return s, nil
	}
	var found *models.ChatSession
	for _, s := range m.Sessions() {
		if !strings.HasPrefix(s.ID, ref) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%q matches more than one chat", ref)
		}
		found = s
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, ref)
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
