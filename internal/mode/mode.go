// Package mode enforces which model selections each interaction mode allows.
package mode

import (
	"errors"
	"fmt"

	"github.com/manash/polychat/pkg/models"
)

var (
	ErrInvalidMode        = errors.New("invalid mode")
	ErrSingleModelMode    = errors.New("only compare mode allows more than one model")
	ErrCapabilityMismatch = errors.New("model cannot serve this mode")
	ErrDuplicateModel     = errors.New("model selected twice")
	ErrPremiumRequired    = errors.New("premium access is required for this model")
	ErrNoModelForMode     = errors.New("no model available for this mode")
	ErrTaskModeMismatch   = errors.New("task targets a different mode")
)

// Outcome is the normalized state after a mode change. Callers clear their
// transient outputs whenever Changed is true.
type Outcome struct {
	Mode      models.Mode
	Selection []*models.Model
	Changed   bool
}

type Controller struct {
	registry     *models.ModelRegistry
	pins         map[models.Mode]string
	allowPremium bool
}

type Option func(*Controller)

// WithPremium allows premium models and tasks.
func WithPremium(allowed bool) Option {
	return func(c *Controller) { c.allowPremium = allowed }
}

// WithPin overrides the model a mode selects when entered without a task.
func WithPin(m models.Mode, modelID string) Option {
	return func(c *Controller) { c.pins[m] = modelID }
}

func New(registry *models.ModelRegistry, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		pins: map[models.Mode]string{
			models.ModeImageGeneration: models.ModelImagen,
			models.ModeVideoGeneration: models.ModelVeo,
			models.ModeAppBuilder:      models.ModelCopilot,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) PremiumAllowed() bool {
	return c.allowPremium
}

// Transition computes the selection that holds after switching from one mode
// to another. A non-nil task forces its recommended model.
func (c *Controller) Transition(from, to models.Mode, selection []*models.Model, task *models.Task) (Outcome, error) {
	if !to.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidMode, to)
	}
	out := Outcome{Mode: to, Changed: from != to}

	if task != nil {
		if task.TargetMode != to {
			return Outcome{}, fmt.Errorf("%w: %s opens %s", ErrTaskModeMismatch, task.ID, task.TargetMode)
		}
		if task.Premium && !c.allowPremium {
			return Outcome{}, fmt.Errorf("%w: %s", ErrPremiumRequired, task.Name)
		}
		m, err := c.lookup(task.RecommendedModel)
		if err != nil {
			return Outcome{}, err
		}
		if err := c.allowed(m); err != nil {
			return Outcome{}, err
		}
		out.Selection = []*models.Model{m}
		out.Changed = true
		return out, nil
	}

	switch to {
	case models.ModeChat:
		if len(selection) > 0 && selection[0].Has(models.CapabilityChat) {
			out.Selection = []*models.Model{selection[0]}
			return out, nil
		}
	case models.ModeCompare:
		for _, m := range selection {
			if m.Has(models.CapabilityChat) {
				out.Selection = append(out.Selection, m)
			}
		}
		if len(out.Selection) > 0 {
			return out, nil
		}
	default:
		if from == to && len(selection) == 1 && c.Validate(to, selection) == nil {
			out.Selection = selection
			return out, nil
		}
	}

	m, err := c.DefaultFor(to)
	if err != nil {
		return Outcome{}, err
	}
	out.Selection = []*models.Model{m}
	return out, nil
}

// DefaultFor returns the model a mode selects on entry: its pin when usable,
// otherwise the first catalog model with the required capability.
func (c *Controller) DefaultFor(mode models.Mode) (*models.Model, error) {
	capability := mode.RequiredCapability()
	if id, ok := c.pins[mode]; ok {
		if m, found := c.registry.Get(id); found && m.Has(capability) && c.allowed(m) == nil {
			return m, nil
		}
	}
	for _, m := range c.registry.ListByCapability(capability) {
		if c.allowed(m) == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoModelForMode, mode)
}

// Validate reports whether selection is legal in mode.
func (c *Controller) Validate(mode models.Mode, selection []*models.Model) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if len(selection) == 0 {
		return models.ErrNoModelsSelected
	}
	if mode != models.ModeCompare && len(selection) > 1 {
		return fmt.Errorf("%w: %d selected in %s", ErrSingleModelMode, len(selection), mode)
	}

	seen := make(map[string]bool, len(selection))
	for _, m := range selection {
		if seen[m.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, m.ID)
		}
		seen[m.ID] = true
		if err := c.check(mode, m); err != nil {
			return err
		}
	}
	return nil
}

// Toggle edits the selection in response to the user picking m. Compare mode
// adds or removes m but never drops the last model; other modes replace.
func (c *Controller) Toggle(mode models.Mode, selection []*models.Model, m *models.Model) ([]*models.Model, error) {
	if err := c.check(mode, m); err != nil {
		return selection, err
	}
	if mode != models.ModeCompare {
		return []*models.Model{m}, nil
	}

	for i, s := range selection {
		if s.ID != m.ID {
			continue
		}
		if len(selection) == 1 {
			return selection, nil
		}
		out := make([]*models.Model, 0, len(selection)-1)
		out = append(out, selection[:i]...)
		return append(out, selection[i+1:]...), nil
	}
	out := make([]*models.Model, 0, len(selection)+1)
	out = append(out, selection...)
	return append(out, m), nil
}

func (c *Controller) check(mode models.Mode, m *models.Model) error {
	if m == nil {
		return models.ErrNoModelsSelected
	}
	if !m.Has(mode.RequiredCapability()) {
		return fmt.Errorf("%w: %s in %s", ErrCapabilityMismatch, m.Name, mode)
	}
	return c.allowed(m)
}

func (c *Controller) allowed(m *models.Model) error {
	if m.Premium && !c.allowPremium {
		return fmt.Errorf("%w: %s", ErrPremiumRequired, m.Name)
	}
	return nil
}

func (c *Controller) lookup(id string) (*models.Model, error) {
	m, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, id)
	}
	return m, nil
}
