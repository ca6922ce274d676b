package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/gophchat/internal/chat"
	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/feed"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/presence"
	"github.com/and161185/gophchat/internal/session"
)

func credentialFlags(cmd *cobra.Command, creds *model.Credentials) {
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
}

func (a *app) registerCmd() *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := withTimeout(cmd, a.timeout())
			defer cancel()
			id, err := a.client.Register(ctx, creds.Username, creds.Password)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(a.out, "registered %s (id %d)\n", id.Username, id.ID)
			return nil
		},
	}
	credentialFlags(cmd, &creds)
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var creds model.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := session.NewGuard(a.client, a.timeout(), a.log.Named("session"), nil)
			id, err := g.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged in as %s\n", id.Username)
			return nil
		},
	}
	credentialFlags(cmd, &creds)
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session.NewGuard(a.client, a.timeout(), a.log.Named("session"), nil).Logout(cmd.Context())
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := session.NewGuard(a.client, a.timeout(), a.log.Named("session"), nil).CheckSession(cmd.Context())
			if id == nil {
				return errNotLoggedIn
			}
			fmt.Fprintf(a.out, "%s (id %d)\n", id.Username, id.ID)
			return nil
		},
	}
}

func (a *app) messagesCmd() *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Print the message feed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := feed.NewSynchronizer(a.client, a.timeout(), a.log.Named("feed"), nil)
			msgs, err := s.Refresh(cmd.Context())
			if err != nil {
				return notLoggedIn(err)
			}
			if last > 0 && len(msgs) > last {
				msgs = msgs[len(msgs)-last:]
			}
			for _, m := range msgs {
				fmt.Fprintln(a.out, formatMessage(m))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "only the newest N messages")
	return cmd
}

func (a *app) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "Print the roster with presence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := presence.NewTracker(a.client, a.timeout(), a.log.Named("presence"), nil)
			if _, err := t.Refresh(cmd.Context()); err != nil {
				return notLoggedIn(err)
			}
			roster := t.Roster()
			fmt.Fprintf(a.out, "%d online, %d users\n", t.OnlineCount(), len(roster))
			for _, e := range roster {
				fmt.Fprintln(a.out, formatRosterEntry(e))
			}
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <text...>",
		Short: "Post a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl := chat.New(a.client, a.chatConfig(), a.log.Named("chat"))
			defer ctl.Close()
			if ctl.Start(cmd.Context()) == nil {
				return errNotLoggedIn
			}
			m, err := ctl.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, formatMessage(m))
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the room; lines typed on stdin are sent (/retry, /logout, /quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctl := chat.New(a.client, a.chatConfig(), a.log.Named("chat"))
			defer ctl.Close()
			id := ctl.Start(cmd.Context())
			if id == nil {
				return errNotLoggedIn
			}
			iv := a.cfg.PollInterval
			if iv <= 0 {
				iv = chat.DefaultPollInterval
			}
			fmt.Fprintf(a.out, "joined as %s, polling every %s\n", id.Username, iv)
			return runWatch(cmd.Context(), ctl, a.in, a.out)
		},
	}
}

// notLoggedIn replaces an unauthorized error with a hint to log in.
func notLoggedIn(err error) error {
	if errors.Is(err, errs.ErrUnauthorized) {
		return errNotLoggedIn
	}
	return err
}
