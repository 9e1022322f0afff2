package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/observability"
	"github.com/nugo-cli/nugo/pkg/resolve"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Messages fed into the progress model, either by the spinner ticker or by
// resolver hooks translating observability events.
type (
	tickMsg        time.Time
	pkgStartMsg    struct{ pkg string }
	pkgDoneMsg     struct {
		assemblies int
		err        error
	}
	resolveDoneMsg struct {
		paths []string
		err   error
	}
)

// progressModel renders a one-line live view of the resolution:
// spinner, the package currently in flight, and running totals.
type progressModel struct {
	frame      int
	current    string
	packages   int
	assemblies int
	done       bool
}

func (m progressModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	case pkgStartMsg:
		m.current = msg.pkg
		return m, nil
	case pkgDoneMsg:
		if msg.err == nil {
			m.packages++
			m.assemblies += msg.assemblies
		}
		return m, nil
	case resolveDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	frame := spinnerFrames[m.frame%len(spinnerFrames)]
	status := fmt.Sprintf("%d packages · %d assemblies", m.packages, m.assemblies)
	line := styleSpinner.Render(frame) + " resolving"
	if m.current != "" {
		line += " " + StyleHighlight.Render(m.current)
	}
	return line + "  " + StyleDim.Render(status) + "\n"
}

// teaResolverHooks forwards resolver events into the running program while
// passing them through to the previously registered hooks.
type teaResolverHooks struct {
	prev    observability.ResolverHooks
	program *tea.Program
}

func (h *teaResolverHooks) OnResolveStart(ctx context.Context, runID, target string, refs int) {
	h.prev.OnResolveStart(ctx, runID, target, refs)
}

func (h *teaResolverHooks) OnResolveComplete(ctx context.Context, runID string, packages, assemblies int, d time.Duration, err error) {
	h.prev.OnResolveComplete(ctx, runID, packages, assemblies, d, err)
}

func (h *teaResolverHooks) OnPackageStart(ctx context.Context, id, version string) {
	h.prev.OnPackageStart(ctx, id, version)
	h.program.Send(pkgStartMsg{pkg: id + "@" + version})
}

func (h *teaResolverHooks) OnPackageComplete(ctx context.Context, id, version string, assemblies int, cached bool, d time.Duration, err error) {
	h.prev.OnPackageComplete(ctx, id, version, assemblies, cached, d, err)
	h.program.Send(pkgDoneMsg{assemblies: assemblies, err: err})
}

// resolveWithProgress runs the resolver behind a live progress view on
// stderr. The resolution result is returned unchanged; UI failures don't
// affect it.
func resolveWithProgress(ctx context.Context, r *resolve.Resolver, refs []directive.Ref) ([]string, error) {
	p := tea.NewProgram(progressModel{}, tea.WithOutput(os.Stderr))

	prev := observability.Resolver()
	observability.SetResolverHooks(&teaResolverHooks{prev: prev, program: p})
	defer observability.SetResolverHooks(prev)

	results := make(chan resolveDoneMsg, 1)
	go func() {
		paths, err := r.Resolve(ctx, refs)
		msg := resolveDoneMsg{paths: paths, err: err}
		results <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		loggerFromContext(ctx).Debugf("progress view failed: %v", err)
	}
	res := <-results
	return res.paths, res.err
}
