package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kycflow/internal/intake/attachments"
	"kycflow/internal/intake/draftsync"
	"kycflow/internal/intake/models"
	"kycflow/internal/intake/sections"
	"kycflow/internal/intake/wizard"
	jwttoken "kycflow/internal/jwt_token"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

type roleFunc func() (id.Role, error)

func newStatusCmd(app *App, roleOf roleFunc) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show progress and the current section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, roleOf, func(_ context.Context, s *session) error {
				printStatus(cmd.OutOrStdout(), s, all)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every section, not just the current one")
	return cmd
}

func printStatus(out io.Writer, s *session, all bool) {
	w := s.wizard
	fmt.Fprintf(out, "Role     : %s\n", s.role)
	fmt.Fprintf(out, "Status   : %s\n", w.Status())
	fmt.Fprintf(out, "Progress : %d%%\n", w.Progress())
	if s.outcome == draftsync.OutcomeDone {
		fmt.Fprintln(out, "This questionnaire has been submitted and can no longer be edited.")
		return
	}
	root := w.Sections()
	for i, sec := range s.registry.Sections() {
		if !all && i != w.Step() {
			continue
		}
		mark := " "
		if s.registry.IsSectionComplete(root, i) {
			mark = "x"
		}
		fmt.Fprintf(out, "\n[%s] Step %d/%d: %s (%s)\n", mark, i+1, w.Steps(), sec.Label, sec.Key)
		for _, f := range sec.Fields {
			p := sec.FieldPath(f)
			fmt.Fprintf(out, "    %-32s %s\n", p, describe(w, f, p))
		}
	}
}

func describe(w *wizard.Wizard, f sections.FieldSpec, p models.Path) string {
	if w.IsPending(p) {
		return "(upload pending)"
	}
	v, ok := w.Field(p)
	if !ok || v.IsNull() {
		if f.Required {
			return "- required"
		}
		return "-"
	}
	return v.String()
}

func newSetCmd(app *App, roleOf roleFunc) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "set <field> [value]",
		Short: "Answer a question, e.g. set personal.first_name Ana",
		Long: `Answer a question. Yes/no questions take true/false (or yes/no).
Use --clear to remove an answer. Attachments are added with "attach".`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, roleOf, func(_ context.Context, s *session) error {
				p := models.ParsePath(args[0])
				spec, ok := s.registry.Field(p)
				if !ok {
					return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown field %q", args[0]))
				}
				var raw string
				if len(args) == 2 {
					raw = args[1]
				} else if !clear {
					return dErrors.New(dErrors.CodeInvalidInput, "a value or --clear is required")
				}
				v, err := parseValue(spec, raw, clear)
				if err != nil {
					return err
				}
				if err := s.wizard.SetField(p, v); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (progress %d%%)\n", p, v, s.wizard.Progress())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the answer")
	return cmd
}

func parseValue(spec sections.FieldSpec, raw string, clear bool) (models.Value, error) {
	if clear {
		return models.Null(), nil
	}
	switch spec.Kind {
	case sections.FieldText:
		return models.Text(raw), nil
	case sections.FieldFlag, sections.FieldTriState:
		switch strings.ToLower(raw) {
		case "yes", "y":
			return models.Bool(true), nil
		case "no", "n":
			return models.Bool(false), nil
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return models.Value{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%q is not a yes/no answer", raw))
		}
		return models.Bool(b), nil
	}
	return models.Value{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s is an attachment; use attach", spec.Label))
}

func newAttachCmd(app *App, roleOf roleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <slot> <file>...",
		Short: "Upload documents into an attachment slot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, roleOf, func(ctx context.Context, s *session) error {
				slot := models.ParsePath(args[0])
				spec, ok := s.registry.Field(slot)
				if !ok || !spec.IsAttachment() {
					return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%q is not an attachment slot", args[0]))
				}
				files := args[1:]
				if spec.Kind == sections.FieldAttachment && len(files) > 1 {
					return dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s takes a single file", spec.Label))
				}
				for _, f := range files {
					if _, err := app.Fs.Stat(f); err != nil {
						return fmt.Errorf("attach %s: %w", f, err)
					}
				}
				// A slot holds one pending pick, so each file is saved before the next.
				for _, f := range files {
					if err := s.wizard.StagePick(slot, attachments.FileBlob{Fs: app.Fs, Path: f}); err != nil {
						return err
					}
					if err := s.wizard.Save(ctx); err != nil {
						return fmt.Errorf("upload %s: %w", f, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d file(s) to %s\n", len(files), slot)
				return nil
			})
		},
	}
}

func newNavCmd(app *App, roleOf roleFunc, use, short string, move func(context.Context, *wizard.Wizard) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, roleOf, func(ctx context.Context, s *session) error {
				_, err := move(ctx, s.wizard)
				return reportMove(cmd.OutOrStdout(), s, err)
			})
		},
	}
}

// reportMove prints the new position. Navigation succeeds even when the save
// failed, so the failure is shown as a warning.
func reportMove(out io.Writer, s *session, err error) error {
	w := s.wizard
	if err != nil {
		fmt.Fprintf(out, "warning: not saved: %v\n", err)
	}
	fmt.Fprintf(out, "Step %d/%d: %s (progress %d%%)\n", w.Step()+1, w.Steps(), w.Section().Label, w.Progress())
	return nil
}

func newFinalizeCmd(app *App, roleOf roleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Submit the questionnaire for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, roleOf, func(ctx context.Context, s *session) error {
				out := cmd.OutOrStdout()
				if err := s.wizard.Finalize(ctx); err != nil {
					if dErrors.HasCode(err, dErrors.CodeIncomplete) {
						printIncomplete(out, s)
					}
					return err
				}
				fmt.Fprintf(out, "Submitted. Status: %s\n", s.done)
				return nil
			})
		},
	}
}

func printIncomplete(out io.Writer, s *session) {
	root := s.wizard.Sections()
	for i, sec := range s.registry.Sections() {
		if !s.registry.IsSectionComplete(root, i) {
			fmt.Fprintf(out, "incomplete: %s (%s)\n", sec.Label, sec.Key)
		}
	}
	for _, p := range s.registry.MissingRequiredAttachments(root) {
		if !s.wizard.IsPending(p) {
			fmt.Fprintf(out, "missing attachment: %s\n", p)
		}
	}
}

func newSkipCmd(app *App, roleOf roleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Leave for now; answers are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, roleOf, func(ctx context.Context, s *session) error {
				if err := s.wizard.Skip(ctx); err != nil {
					return err
				}
				if s.skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "Skipped at %d%%. Run \"kycctl status\" to pick up where you left off.\n", s.wizard.Progress())
				}
				return nil
			})
		},
	}
}

// newTokenCmd mints a bearer token with the server's signing key. It is for
// local development against a server sharing the same environment.
func newTokenCmd(app *App) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := id.ParseRole(cmd.Flag("role").Value.String())
			if err != nil {
				return err
			}
			userID := id.UserID(uuid.New())
			if user != "" {
				if userID, err = id.ParseUserID(user); err != nil {
					return err
				}
			}
			svc := jwttoken.NewJWTService(app.Server.JWTSigningKey, app.Server.JWTIssuer, app.Server.JWTAudience)
			token, err := svc.GenerateAccessToken(userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID (default: a new random ID)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
