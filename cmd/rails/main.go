package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ironrails/internal/api"
	cl "ironrails/internal/cli"
	"ironrails/internal/config"
	"ironrails/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "rails",
		Short:        "Iron Rails terminal client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newIdentityCmd(&apiBase),
		newLogoutCmd(),
		newNewCmd(&apiBase),
		newJoinCmd(&apiBase),
		newGamesCmd(&apiBase),
		newShowCmd(&apiBase),
		newStartCmd(&apiBase),
		newBuyCmd(&apiBase),
		newPassCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newOperateCmd(&apiBase),
		newWatchCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func actionContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// gameArg resolves the game code from the command line or falls back to the
// last game the session touched.
func gameArg(args []string, session cl.Session) (string, error) {
	if len(args) > 0 {
		return strings.ToUpper(strings.TrimSpace(args[0])), nil
	}
	if session.GameID != "" {
		return session.GameID, nil
	}
	return "", fmt.Errorf("no game code given and none remembered; pass one or run `rails join <code>`")
}

func newIdentityCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "identity <name>",
		Short: "Create your anonymous player identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := actionContext(cmd)
			defer cancel()
			identity, err := newClient(apiBase).NewIdentity(ctx, args[0])
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				PlayerID: identity.PlayerID,
				Name:     identity.Name,
				Token:    identity.Token,
			}); err != nil {
				return err
			}
			printSuccess("Welcome aboard, %s.", identity.Name)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local identity and game",
		RunE: func(*cobra.Command, []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printNeutral("Session cleared.")
			return nil
		},
	}
}

func newNewCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a game and print its join code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).CreateGame(ctx, session.Token)
			if err != nil {
				return err
			}
			session.GameID = rec.ID
			if err := cl.SaveSession(session); err != nil {
				return err
			}
			printSuccess("Game %s created.", rec.ID)
			printJoinCode(rec.ID)
			printNeutral("Share the code, then run `rails start` when everyone is in.")
			return nil
		},
	}
}

func newJoinCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a lobby by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			code := strings.ToUpper(strings.TrimSpace(args[0]))
			rec, err := newClient(apiBase).JoinGame(ctx, session.Token, code)
			if err != nil {
				return err
			}
			session.GameID = rec.ID
			if err := cl.SaveSession(session); err != nil {
				return err
			}
			printSuccess("Joined game %s (%d players).", rec.ID, len(rec.PlayerOrder))
			return nil
		},
	}
}

func newGamesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List open lobbies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			games, err := newClient(apiBase).LobbyGames(ctx, session.Token)
			if err != nil {
				return err
			}
			renderLobbies(games)
			return nil
		},
	}
}

func newShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [code]",
		Short: "Show the current game state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args, session)
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).Game(ctx, session.Token, gameID)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
}

func newStartCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start [code]",
		Short: "Start the game (host only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args, session)
			if err != nil {
				return err
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).StartGame(ctx, session.Token, gameID)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "buy <company> [code]",
		Short: "Buy one share during the stock phase",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args[1:], session)
			if err != nil {
				return err
			}
			company := strings.ToUpper(strings.TrimSpace(args[0]))
			if queue {
				if err := syncq.Push(syncq.Command{Action: "buy", GameID: gameID, Company: company}); err != nil {
					return err
				}
				printWarn("Queued: buy %s in %s. Run `rails sync` when back online.", company, gameID)
				return nil
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).BuyShare(ctx, session.Token, gameID, company)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the action locally instead of sending it")
	return cmd
}

func newPassCmd(apiBase *string) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "pass [code]",
		Short: "Pass your stock turn",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args, session)
			if err != nil {
				return err
			}
			if queue {
				if err := syncq.Push(syncq.Command{Action: "pass", GameID: gameID}); err != nil {
					return err
				}
				printWarn("Queued: pass in %s.", gameID)
				return nil
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).PassTurn(ctx, session.Token, gameID)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the action locally instead of sending it")
	return cmd
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "upgrade [code]",
		Short: "Build track for the operating company",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args, session)
			if err != nil {
				return err
			}
			if queue {
				if err := syncq.Push(syncq.Command{Action: "upgrade", GameID: gameID}); err != nil {
					return err
				}
				printWarn("Queued: upgrade in %s.", gameID)
				return nil
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).UpgradeTrack(ctx, session.Token, gameID)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the action locally instead of sending it")
	return cmd
}

func newOperateCmd(apiBase *string) *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "operate <withhold|dividend> [code]",
		Short: "Resolve the operating company's revenue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args[1:], session)
			if err != nil {
				return err
			}
			payout := strings.ToUpper(strings.TrimSpace(args[0]))
			if queue {
				if err := syncq.Push(syncq.Command{Action: "operate", GameID: gameID, Payout: payout}); err != nil {
					return err
				}
				printWarn("Queued: operate %s in %s.", payout, gameID)
				return nil
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			rec, err := newClient(apiBase).Operate(ctx, session.Token, gameID, payout)
			if err != nil {
				return err
			}
			renderGame(rec, session.PlayerID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the action locally instead of sending it")
	return cmd
}

func newWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [code]",
		Short: "Follow the game live, redrawing on every change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID, err := gameArg(args, session)
			if err != nil {
				return err
			}
			updates, err := newClient(apiBase).Watch(cmd.Context(), session.Token, gameID)
			if err != nil {
				return err
			}
			for rec := range updates {
				fmt.Print("\033[H\033[2J")
				renderGame(rec, session.PlayerID)
			}
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay actions queued while offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := cl.LoadSession()
			if err != nil {
				return err
			}
			queued, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queued) == 0 {
				printNeutral("Nothing queued.")
				return nil
			}
			commands := make([]api.ReplayCommand, 0, len(queued))
			for _, q := range queued {
				commands = append(commands, api.ReplayCommand{
					Action:  q.Action,
					GameID:  q.GameID,
					Company: q.Company,
					Payout:  q.Payout,
				})
			}
			ctx, cancel := actionContext(cmd)
			defer cancel()
			results, err := newClient(apiBase).Replay(ctx, session.Token, commands)
			if err != nil {
				return err
			}
			for i, res := range results {
				if res.OK {
					printSuccess("%d. %s: ok", i+1, queued[i].Action)
				} else {
					printDanger("%d. %s: %s", i+1, queued[i].Action, res.Error)
				}
			}
			return syncq.Clear()
		},
	}
}
