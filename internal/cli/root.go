// Package cli implements kycctl, a terminal front end for the intake wizard.
// Each invocation mounts the wizard against the KYC service, applies one
// action and flushes before exiting.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"kycflow/internal/intake/attachments"
	"kycflow/internal/intake/draftsync"
	"kycflow/internal/intake/metrics"
	"kycflow/internal/intake/models"
	"kycflow/internal/intake/sections"
	"kycflow/internal/intake/wizard"
	"kycflow/internal/platform/config"
	id "kycflow/pkg/domain"
	"kycflow/pkg/kycclient"
)

// Backend is the KYC service as the wizard sees it.
type Backend interface {
	draftsync.Remote
	attachments.Uploader
}

// Dialer builds a Backend for the configured service.
type Dialer func(cfg config.Wizard) (Backend, error)

// App holds what every command needs.
type App struct {
	Fs     afero.Fs
	Config config.Wizard
	Server config.Server
	Dial   Dialer
	Logger *slog.Logger
}

// DialHTTP talks to the service with kycclient.
func DialHTTP(logger *slog.Logger) Dialer {
	return func(cfg config.Wizard) (Backend, error) {
		return kycclient.New(cfg.BaseURL,
			kycclient.WithToken(cfg.Token),
			kycclient.WithLogger(logger),
		)
	}
}

// NewRootCommand builds the kycctl command tree.
func NewRootCommand(app *App) *cobra.Command {
	var role string
	root := &cobra.Command{
		Use:           "kycctl",
		Short:         "Fill in KYC intake questionnaires from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("state") {
				app.Config.StateFile, _ = cmd.Flags().GetString("state")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&role, "role", "r", string(id.RoleDonor), "intake role")
	root.PersistentFlags().String("state", app.Config.StateFile, "path of the local step file")

	roleOf := func() (id.Role, error) { return id.ParseRole(role) }
	root.AddCommand(
		newStatusCmd(app, roleOf),
		newSetCmd(app, roleOf),
		newAttachCmd(app, roleOf),
		newNavCmd(app, roleOf, "next", "Save and move to the next section", func(ctx context.Context, w *wizard.Wizard) (int, error) {
			return w.Advance(ctx)
		}),
		newNavCmd(app, roleOf, "back", "Save and move to the previous section", func(ctx context.Context, w *wizard.Wizard) (int, error) {
			return w.Retreat(ctx)
		}),
		newFinalizeCmd(app, roleOf),
		newSkipCmd(app, roleOf),
		newTokenCmd(app),
	)
	return root
}

// session is one mounted wizard.
type session struct {
	app      *App
	role     id.Role
	registry *sections.Registry
	state    *state
	wizard   *wizard.Wizard
	outcome  draftsync.Outcome
	done     models.Status
	skipped  bool
	// metrics is non-nil when Config.MetricsFile is set.
	metrics *prometheus.Registry
}

func (a *App) open(ctx context.Context, out io.Writer, role id.Role) (*session, error) {
	reg, err := sections.ForRole(role)
	if err != nil {
		return nil, err
	}
	backend, err := a.Dial(a.Config)
	if err != nil {
		return nil, err
	}
	st, err := loadState(a.Fs, a.Config.StateFile)
	if err != nil {
		return nil, err
	}

	s := &session{app: a, role: role, registry: reg, state: st}
	opts := []wizard.Option{
		wizard.WithLogger(a.Logger),
		wizard.WithDebounce(a.Config.Debounce),
		wizard.WithUploadConcurrency(a.Config.Concurrency),
		wizard.WithStartStep(st.Steps[role]),
		wizard.WithOnDone(func(status models.Status) { s.done = status }),
		wizard.WithOnSkip(func() { s.skipped = true }),
	}
	if a.Config.MetricsFile != "" {
		s.metrics = prometheus.NewRegistry()
		opts = append(opts, wizard.WithMetrics(metrics.New(s.metrics)))
	}
	w, err := wizard.New(reg, backend, backend, opts...)
	if err != nil {
		return nil, err
	}
	s.wizard = w

	s.outcome, err = w.Mount(ctx)
	if err != nil {
		fmt.Fprintf(out, "warning: saved answers could not be loaded (%v); starting empty\n", err)
	}
	return s, nil
}

// close flushes unsaved edits, records the current step and, when
// configured, writes this invocation's wizard metrics for the node exporter
// textfile collector.
func (s *session) close(ctx context.Context) error {
	err := s.wizard.Close(ctx)
	s.state.Steps[s.role] = s.wizard.Step()
	if serr := s.state.save(s.app.Fs, s.app.Config.StateFile); serr != nil && err == nil {
		err = serr
	}
	if s.metrics != nil {
		if merr := prometheus.WriteToTextfile(s.app.Config.MetricsFile, s.metrics); merr != nil {
			s.app.Logger.WarnContext(ctx, "failed to write wizard metrics", "path", s.app.Config.MetricsFile, "error", merr)
		}
	}
	return err
}

// run opens a session, applies fn and always closes.
func (a *App) run(cmd *cobra.Command, roleOf func() (id.Role, error), fn func(ctx context.Context, s *session) error) error {
	role, err := roleOf()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Timeout)
		defer cancel()
	}

	s, err := a.open(ctx, cmd.OutOrStdout(), role)
	if err != nil {
		return err
	}
	ferr := fn(ctx, s)
	cerr := s.close(ctx)
	if ferr != nil {
		return ferr
	}
	if cerr != nil {
		return fmt.Errorf("answers not saved: %w", cerr)
	}
	return nil
}
