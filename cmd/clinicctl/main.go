package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"clinic-core/common/logger"
	"clinic-core/internal/app"
	"clinic-core/internal/auth"
	"clinic-core/internal/config"
	"clinic-core/internal/domain"
	"clinic-core/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type userFlags struct {
	id        string
	roles     []string
	superuser bool
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "user", "", "user id (empty for anonymous)")
	cmd.Flags().StringSliceVar(&f.roles, "roles", nil, "comma separated role codes")
	cmd.Flags().BoolVar(&f.superuser, "superuser", false, "treat the user as a superuser")
}

func (f *userFlags) user() *domain.User {
	if f.id == "" {
		return nil
	}
	return &domain.User{ID: f.id, Roles: f.roles, IsSuperuser: f.superuser}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Inspect tenant resolution and permissions of clinic-core",
		SilenceUsage: true,
	}
	root.AddCommand(newResolveCommand(), newAuthorizeCommand(), newMenuCommand(), newTokenCommand(), newInvalidateTenantCommand())
	return root
}

// withApp wires clinic-core from the environment for the duration of fn.
// Access log entries produced by fn are flushed before returning.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Log.Level, "console", "clinicctl")
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()
	return fn(ctx, a)
}

// bindTenant resolves target like the server would and activates the
// tenant's partition. The caller must call the returned release func.
func bindTenant(ctx context.Context, a *app.App, target string) (context.Context, func(), error) {
	req := httptest.NewRequest("GET", target, nil)
	res, err := a.Resolver.ResolveTenant(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	part, err := a.Activator.Activate(ctx, res.Tenant.Slug)
	if err != nil {
		return nil, nil, err
	}
	tc := service.NewRequestTenantContext(res, part)
	ctx = service.WithRequestMeta(service.WithTenantContext(ctx, tc), service.RequestMeta{UserAgent: "clinicctl"})
	return ctx, part.Release, nil
}

func normalizeTarget(target string) string {
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	return target
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve URL",
		Short: "Show which tenant a request URL resolves to",
		Example: `  clinicctl resolve http://acme.localhost/patients/
  clinicctl resolve "localhost/acme/patients/?tenant=beta"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Resolver.ResolveTenant(ctx, httptest.NewRequest("GET", normalizeTarget(args[0]), nil))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tenant":         res.Tenant,
					"strategy":       res.Strategy,
					"remaining_path": res.RemainingPath,
					"prefix":         res.PathPrefix,
				})
			})
		},
	}
}

func newAuthorizeCommand() *cobra.Command {
	var uf userFlags
	var action string
	cmd := &cobra.Command{
		Use:   "authorize URL ROUTE_ID",
		Short: "Decide an action on a route for a user, as the server would",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := domain.ParseAction(action)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				ctx, release, err := bindTenant(ctx, a, normalizeTarget(args[0]))
				if err != nil {
					return err
				}
				defer release()
				user := uf.user()
				d := a.Engine.Authorize(ctx, user, args[1], act)
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"route_id":     args[1],
					"action":       act,
					"decision":     d.String(),
					"capabilities": a.Engine.Can(ctx, user, args[1]),
				})
			})
		},
	}
	uf.register(cmd)
	cmd.Flags().StringVar(&action, "action", string(domain.ActionView), "view, create, edit, delete or export")
	return cmd
}

func newMenuCommand() *cobra.Command {
	var uf userFlags
	cmd := &cobra.Command{
		Use:   "menu URL",
		Short: "Print the navigation menu a user would see",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				ctx, release, err := bindTenant(ctx, a, normalizeTarget(args[0]))
				if err != nil {
					return err
				}
				defer release()
				menu := a.Engine.BuildMenu(ctx, uf.user())
				if menu == nil {
					menu = []service.MenuEntry{}
				}
				return printJSON(cmd.OutOrStdout(), menu)
			})
		},
	}
	uf.register(cmd)
	return cmd
}

func newInvalidateTenantCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-tenant SLUG",
		Short: "Drop cached lookups of a tenant after editing it in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				if a.TenantCache == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "tenant cache disabled, nothing to invalidate")
					return nil
				}
				if err := a.InvalidateTenant(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", args[0])
				return nil
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	var uf userFlags
	var name string
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development JWT for AUTH_MODE=jwt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user := uf.user()
			if user == nil {
				return fmt.Errorf("--user is required")
			}
			user.Username = name
			cfg := config.Load()
			a, err := auth.NewJWTAuthenticator(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}
			token, err := a.IssueToken(user, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	uf.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "username claim")
	cmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "token lifetime")
	return cmd
}
