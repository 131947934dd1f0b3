package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"anipink/internal/session"
	"anipink/internal/tracker"
	"anipink/pkg/models"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show and edit your taste profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				printProfile(cmd.OutOrStdout(), s.Store().Profile())
				return nil
			})
		},
	}

	profileCmd.AddCommand(newGenreCommand(ctx, "like", "Add a liked genre", (*tracker.Orchestrator).AddLike))
	profileCmd.AddCommand(newGenreCommand(ctx, "unlike", "Remove a liked genre", (*tracker.Orchestrator).RemoveLike))
	profileCmd.AddCommand(newGenreCommand(ctx, "dislike", "Add a disliked genre", (*tracker.Orchestrator).AddDislike))
	profileCmd.AddCommand(newGenreCommand(ctx, "undislike", "Remove a disliked genre", (*tracker.Orchestrator).RemoveDislike))
	profileCmd.AddCommand(&cobra.Command{
		Use:   "username <name>",
		Short: "Change your display name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				p, err := s.Orchestrator.SetUsername(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	})
	return profileCmd
}

type genreEdit func(*tracker.Orchestrator, context.Context, string) (models.Profile, error)

func newGenreCommand(ctx *commandContext, use, short string, edit genreEdit) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <genre>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				p, err := edit(s.Orchestrator, cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func printProfile(w io.Writer, p models.Profile) {
	fmt.Fprintf(w, "User:     %s\n", p.Username)
	fmt.Fprintf(w, "Likes:    %s\n", joinOrNone(p.Likes))
	fmt.Fprintf(w, "Dislikes: %s\n", joinOrNone(p.Dislikes))
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
