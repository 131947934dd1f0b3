package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anipink/internal/session"
	"anipink/pkg/models"
)

func newListCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newListCommand(ctx),
		newAddCommand(ctx),
		newAdvanceCommand(ctx),
		newRateCommand(ctx),
		newStatusCommand(ctx),
		newRefreshCommand(ctx),
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var watching bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the watch list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				items := s.Store().List()
				if watching {
					items = s.Store().Watching()
				}
				printAnimeList(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watching, "watching", false, "Only shows with status Watching")
	return cmd
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var episode int
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a show and look up its current arc",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				a, err := s.Orchestrator.AddAnime(cmd.Context(), title, episode)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s), looking up arc...\n", a.Title, shortID(a.ID))
				s.Orchestrator.Wait()
				a, _ = s.Store().Anime(a.ID)
				printAnime(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&episode, "episode", "e", 1, "Episode you are on")
	return cmd
}

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <id>",
		Short: "Mark the next episode as watched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				a, err := s.Orchestrator.Advance(cmd.Context(), id)
				if err != nil {
					return err
				}
				s.Orchestrator.Wait()
				a, _ = s.Store().Anime(a.ID)
				printAnime(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

func newRateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rate <id> <1-10>",
		Short: "Rate a show",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("rating must be a number: %w", err)
			}
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				a, err := s.Orchestrator.Rate(cmd.Context(), id, rating)
				if err != nil {
					return err
				}
				printAnime(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <watching|completed|plan-to-watch|dropped>",
		Short: "Change a show's status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.ReplaceAll(strings.Join(args[1:], " "), "-", " ")
			status, ok := models.ParseStatus(raw)
			if !ok {
				return fmt.Errorf("unknown status %q", raw)
			}
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				if status == models.StatusDropped {
					cur, _ := s.Store().Anime(id)
					fmt.Fprintf(cmd.OutOrStdout(), "💬 %s\n", s.Orchestrator.Motivate(cmd.Context(), cur.Title))
				}
				a, err := s.Orchestrator.SetStatus(cmd.Context(), id, status)
				if err != nil {
					return err
				}
				printAnime(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Look up the current arc again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				a, err := s.Orchestrator.RefreshArc(cmd.Context(), id)
				if err != nil {
					return err
				}
				printAnime(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(s *session.Session, ref string) (string, error) {
	if _, ok := s.Store().Anime(ref); ok {
		return ref, nil
	}
	var match string
	for _, a := range s.Store().List() {
		if strings.HasPrefix(a.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("id %q is ambiguous", ref)
			}
			match = a.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no show with id %q", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printAnimeList(w io.Writer, items []models.Anime) {
	if len(items) == 0 {
		fmt.Fprintln(w, "list is empty")
		return
	}
	headers := []string{"ID", "Title", "Status", "Episode", "Arc", "To Arc End", "Rating"}
	rows := make([][]string, 0, len(items))
	for _, a := range items {
		rows = append(rows, animeRow(a))
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight}
	writeTable(w, headers, rows, aligns)
}

func printAnime(w io.Writer, a models.Anime) {
	printAnimeList(w, []models.Anime{a})
}

func animeRow(a models.Anime) []string {
	episode := strconv.Itoa(a.CurrentEpisode)
	if a.TotalEpisodes != nil {
		episode += "/" + strconv.Itoa(*a.TotalEpisodes)
	}
	arc := ""
	if a.CurrentArc != nil {
		arc = *a.CurrentArc
	}
	toEnd := ""
	if a.EpisodesToArcEnd != nil {
		toEnd = strconv.Itoa(*a.EpisodesToArcEnd)
	}
	if a.PendingLookup {
		toEnd = "?"
	}
	rating := ""
	if a.Rating != nil {
		rating = strconv.Itoa(*a.Rating) + "/10"
	}
	return []string{shortID(a.ID), a.Title, string(a.Status), episode, arc, toEnd, rating}
}
