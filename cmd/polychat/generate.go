package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/manash/polychat/internal/display"
	"github.com/manash/polychat/internal/media"
	"github.com/manash/polychat/internal/orchestrator"
	"github.com/manash/polychat/pkg/models"
)

// withRuntime runs fn with a signal-aware context and a runtime that is
// closed afterwards.
func (app *App) withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newChatCmd(app *App) *cobra.Command {
	var (
		modelID string
		fresh   bool
	)
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message in the active chat",
		Long: `Send one message to a chat model and print the reply.

The exchange is saved to the signed-in user's active chat. Use --new to start
a fresh one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if fresh {
					if err := rt.engine.NewSession(ctx); err != nil {
						return err
					}
				}
				if modelID != "" {
					if err := rt.engine.SelectModels([]string{modelID}); err != nil {
						return err
					}
				}

				msg, err := rt.engine.SendMessage(ctx, strings.Join(args, " "))
				if err != nil {
					if msg.ID != "" {
						return fmt.Errorf("%s (%s)", orchestrator.ChatFailure, msg.Content)
					}
					return err
				}
				fmt.Fprintln(app.Out, msg.Content)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "chat model id (default: gemini)")
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new chat")
	return cmd
}

func newCompareCmd(app *App) *cobra.Command {
	var ids []string
	cmd := &cobra.Command{
		Use:   "compare <prompt>",
		Short: "Send one prompt to several models side by side",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if err := rt.engine.SetMode(ctx, models.ModeCompare); err != nil {
					return err
				}
				var ms []*models.Model
				if len(ids) > 0 {
					resolved, err := rt.engine.Registry().Resolve(ids)
					if err != nil {
						return err
					}
					ms = resolved
				}

				results, err := rt.engine.Compare(ctx, strings.Join(args, " "), ms)
				if err != nil {
					return err
				}
				for i, res := range results {
					if i > 0 {
						fmt.Fprintln(app.Out)
					}
					fmt.Fprintf(app.Out, "=== %s ===\n", res.Model.Name)
					if res.State == models.ResultFailed {
						fmt.Fprintf(app.Out, "[failed] %s\n", res.Error)
						continue
					}
					fmt.Fprintln(app.Out, res.Response)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&ids, "models", nil, "comma-separated model ids (default: the compare selection)")
	return cmd
}

type mediaFlags struct {
	modelID string
	input   string
	output  string
	show    bool
}

func (f *mediaFlags) register(cmd *cobra.Command, withInput bool) {
	cmd.Flags().StringVarP(&f.modelID, "model", "m", "", "model id")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file name inside the output directory")
	if withInput {
		cmd.Flags().StringVarP(&f.input, "input", "i", "", "source image to edit or animate")
	}
}

// prepare switches the engine to m, selects the requested model and
// attaches the input image.
func (f *mediaFlags) prepare(ctx context.Context, rt *runtime, m models.Mode) error {
	if err := rt.engine.SetMode(ctx, m); err != nil {
		return err
	}
	if f.modelID != "" {
		if err := rt.engine.SelectModels([]string{f.modelID}); err != nil {
			return err
		}
	}
	if f.input != "" {
		in, err := media.LoadInputMedia(f.input)
		if err != nil {
			return err
		}
		if err := rt.engine.SetInputMedia(in); err != nil {
			return err
		}
	}
	return nil
}

func newImageCmd(app *App) *cobra.Command {
	var flags mediaFlags
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image, or edit one with --input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if err := flags.prepare(ctx, rt, models.ModeImageGeneration); err != nil {
					return err
				}
				prompt := strings.Join(args, " ")
				fmt.Fprintf(app.Err, "Generating with %s...\n", selectedName(rt))

				img, err := rt.engine.GenerateImage(ctx, prompt)
				if err != nil {
					return err
				}
				path, err := rt.saver.SaveImage(img, prompt, flags.output)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Saved: %s (%s)\n", path, humanize.Bytes(uint64(len(img.Data))))
				if flags.show {
					return display.New(app.Out, app.GetEnv).Show(img)
				}
				return nil
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().BoolVar(&flags.show, "show", false, "display the image inline (kitty, ghostty, iTerm2, WezTerm)")
	return cmd
}

func newVideoCmd(app *App) *cobra.Command {
	var flags mediaFlags
	cmd := &cobra.Command{
		Use:   "video <prompt>",
		Short: "Generate a short video, optionally from a starting image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if err := flags.prepare(ctx, rt, models.ModeVideoGeneration); err != nil {
					return err
				}
				prompt := strings.Join(args, " ")
				fmt.Fprintf(app.Err, "Generating with %s...\n", selectedName(rt))

				var (
					mu   sync.Mutex
					last string
				)
				cancel := rt.engine.Subscribe(func(s orchestrator.State) {
					mu.Lock()
					defer mu.Unlock()
					if s.Progress != "" && s.Progress != last {
						last = s.Progress
						fmt.Fprintf(app.Err, "  %s\n", s.Progress)
					}
				})
				video, err := rt.engine.GenerateVideo(ctx, prompt)
				cancel()
				if err != nil {
					return err
				}

				path, err := rt.saver.SaveVideo(ctx, video, prompt, flags.output)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Saved: %s\n", path)
				return nil
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newBuildCmd(app *App) *cobra.Command {
	var flags mediaFlags
	cmd := &cobra.Command{
		Use:   "build <description>",
		Short: "Generate a single-page web app",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(func(ctx context.Context, rt *runtime) error {
				if err := flags.prepare(ctx, rt, models.ModeAppBuilder); err != nil {
					return err
				}
				prompt := strings.Join(args, " ")
				fmt.Fprintf(app.Err, "Building with %s...\n", selectedName(rt))

				webApp, err := rt.engine.BuildApp(ctx, prompt)
				if err != nil {
					return err
				}
				path, err := rt.saver.SaveApp(webApp, prompt, flags.output)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "Saved: %s\n", path)
				return nil
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func selectedName(rt *runtime) string {
	if m := rt.engine.Snapshot().Model(); m != nil {
		return m.Name
	}
	return "none"
}
