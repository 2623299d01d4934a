package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/spf13/cobra"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/guard"
	"github.com/hitoshi/taskman/internal/handler"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

// ErrSignInRequired はログインが必要なコマンドを未ログインで実行したことを表す。
var ErrSignInRequired = errors.New("sign in required")

// newRootCommand はtaskmanのルートコマンドを構築する。
// サブコマンドなしで実行した場合はhomeと同じ。
func newRootCommand(a *application) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskman",
		Short:         "Command-line client for the task management service",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := parseOutputFormat(a.output)
			return err
		},
		RunE: a.runHome,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.output, "output", "o", string(formatTable), "output format: table, json or yaml")

	root.AddCommand(
		newHomeCommand(a),
		newSignInCommand(a),
		newSignUpCommand(a),
		newGoogleCommand(a),
		newSignOutCommand(a),
		newWhoAmICommand(a),
		newTasksCommand(a),
		newMigrateCommand(a),
	)
	return root
}

func (a *application) printer() printer {
	return printer{w: a.streams.Out, format: outputFormat(a.output)}
}

// guest はRedirectIfAuthenticatedガードをマウントし、表示が許可された場合だけfnを実行する。
func (a *application) guest(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := a.runtime(cmd.Context())
	if err != nil {
		return err
	}

	g := guard.RedirectIfAuthenticated(rt.store, rt.nav)
	defer g.Unmount()
	if !g.Allowed() {
		fmt.Fprintln(a.streams.Err, "Already signed in. Run `taskman signout` first to switch accounts.")
		return nil
	}
	return fn(cmd.Context(), rt)
}

// protected はProtectedガードをマウントし、表示が許可された場合だけfnを実行する。
// 実行中にセッションが失効した場合はErrSignInRequiredを含むエラーを返す。
func (a *application) protected(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, g *guard.Guard) error) error {
	rt, err := a.runtime(cmd.Context())
	if err != nil {
		return err
	}

	g := guard.Protected(rt.store, rt.nav)
	defer g.Unmount()
	if !g.Allowed() {
		return ErrSignInRequired
	}

	if err := fn(cmd.Context(), rt, g); err != nil {
		if !g.Allowed() && errors.Is(err, model.ErrUnauthorized) {
			return fmt.Errorf("%w: %w", ErrSignInRequired, err)
		}
		return err
	}
	return nil
}

func newHomeCommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show the current session and what to do next",
		Args:  cobra.NoArgs,
		RunE:  a.runHome,
	}
}

func (a *application) runHome(cmd *cobra.Command, _ []string) error {
	rt, err := a.runtime(cmd.Context())
	if err != nil {
		return err
	}

	out := a.streams.Out
	snap := rt.store.Snapshot()
	switch {
	case snap.Authenticated():
		fmt.Fprintf(out, "Signed in as %s <%s>\n\n", snap.User.DisplayName(), snap.User.Email)
		fmt.Fprintln(out, "  taskman tasks list      show your tasks")
		fmt.Fprintln(out, "  taskman tasks create    add a task")
		fmt.Fprintln(out, "  taskman signout         sign out")
	case snap.HasToken():
		fmt.Fprintln(out, "Signed in, but the profile has not been loaded.")
		fmt.Fprintln(out, "Run `taskman signout` and sign in again.")
	default:
		fmt.Fprintln(out, "Not signed in.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  taskman signin          sign in with email and password")
		fmt.Fprintln(out, "  taskman google          sign in with Google")
		fmt.Fprintln(out, "  taskman signup          create an account")
	}
	return nil
}

func newSignInCommand(a *application) *cobra.Command {
	var email, passwordFile string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.guest(cmd, func(ctx context.Context, rt *runtime) error {
				p := newPrompter(a.streams.In, a.streams.Err)

				creds := model.Credentials{Email: email}
				if creds.Email == "" {
					v, err := p.Line("Email: ")
					if err != nil {
						return fmt.Errorf("no email provided: %w", err)
					}
					creds.Email = v
				}
				password, err := readPassword(p, passwordFile, "Password: ")
				if err != nil {
					return err
				}
				creds.Password = password

				if err := creds.Validate(); err != nil {
					return err
				}

				user, err := rt.auth.Login(ctx, creds)
				if err != nil {
					return err
				}
				if user != nil {
					fmt.Fprintf(a.streams.Out, "Signed in as %s\n", user.DisplayName())
				} else {
					fmt.Fprintln(a.streams.Out, "Signed in.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from the first line of a file")
	return cmd
}

func newSignUpCommand(a *application) *cobra.Command {
	var reg model.Registration
	var passwordFile string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.guest(cmd, func(ctx context.Context, rt *runtime) error {
				p := newPrompter(a.streams.In, a.streams.Err)

				fields := []struct {
					label string
					value *string
				}{
					{"Username: ", &reg.Username},
					{"Email: ", &reg.Email},
					{"First name: ", &reg.FirstName},
					{"Last name: ", &reg.LastName},
				}
				for _, f := range fields {
					if *f.value != "" {
						continue
					}
					v, err := p.Line(f.label)
					if err != nil {
						return fmt.Errorf("incomplete registration input: %w", err)
					}
					*f.value = v
				}

				password, err := readPassword(p, passwordFile, "Password: ")
				if err != nil {
					return err
				}
				reg.Password = password
				if passwordFile != "" {
					reg.PasswordConfirm = password
				} else if reg.PasswordConfirm, err = readPassword(p, "", "Confirm password: "); err != nil {
					return err
				}

				if err := reg.Validate(); err != nil {
					return err
				}
				if err := rt.auth.Register(ctx, reg); err != nil {
					return err
				}

				fmt.Fprintln(a.streams.Out, "Account created. Sign in to continue.")
				rt.nav.Navigate(guard.RouteSignIn)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from the first line of a file")
	return cmd
}

func newGoogleCommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google in the browser",
		Long: "Prints the Google sign-in URL and waits for the browser to be redirected\n" +
			"back to the local callback server (TASKMAN_CALLBACK_ADDR).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.guest(cmd, a.runGoogleSignIn)
		},
	}
}

// runGoogleSignIn はループバックサーバーでコールバックを待ち受け、結果に応じて遷移する。
func (a *application) runGoogleSignIn(ctx context.Context, rt *runtime) error {
	callback := handler.NewCallbackHandler(rt.auth, a.logger)

	ln, err := net.Listen("tcp", a.cfg.CallbackAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on callback address: %w", err)
	}
	srv := newLoopbackServer(&handler.RouterDeps{
		Callback: callback,
		Metrics:  metrics.Handler(rt.registry),
		Logger:   a.logger,
	})

	fmt.Fprintln(a.streams.Err, "Open the following URL in your browser to sign in with Google:")
	fmt.Fprintln(a.streams.Out, rt.auth.GoogleLoginURL())
	fmt.Fprintf(a.streams.Err, "Waiting for the callback on http://%s/google-callback ...\n", ln.Addr())

	go serve(srv, ln, a.logger)
	defer func() {
		if err := shutdown(srv); err != nil {
			a.logger.Warn("callback server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallbackTimeout)
	defer cancel()

	select {
	case res := <-callback.Results():
		rt.nav.Navigate(res.Route)
		if res.Err != nil {
			if res.Route != auth.RouteHome {
				return fmt.Errorf("google sign-in failed: %w", res.Err)
			}
			// ログインはメモリ上で完了しており、このプロセスの間は有効
			fmt.Fprintf(a.streams.Err, "Warning: the session could not be saved and will not survive this command: %v\n", res.Err)
		}
		if snap := rt.store.Snapshot(); snap.User != nil {
			fmt.Fprintf(a.streams.Out, "Signed in as %s\n", snap.User.DisplayName())
		} else {
			fmt.Fprintln(a.streams.Out, "Signed in.")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gave up waiting for the google callback: %w", ctx.Err())
	}
}

func newSignOutCommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			// 永続化に失敗してもメモリ上はログアウト済み
			if err := rt.store.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(a.streams.Out, "Signed out.")
			rt.nav.Navigate(guard.RouteHome)
			return nil
		},
	}
}

func newWhoAmICommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.protected(cmd, func(_ context.Context, rt *runtime, _ *guard.Guard) error {
				snap := rt.store.Snapshot()
				return a.printer().profile(*snap.User)
			})
		},
	}
}

func newMigrateCommand(a *application) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the session database migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrate(a.cfg, a.logger)
		},
	}
}

// readPassword はpathが指定されていればファイルから、なければプロンプトで読み込む。
func readPassword(p *prompter, path, label string) (string, error) {
	if path != "" {
		return readPasswordFile(path)
	}
	password, err := p.Password(label)
	if errors.Is(err, io.EOF) {
		return "", errors.New("no password provided")
	}
	return password, err
}
