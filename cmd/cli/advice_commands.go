package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anipink/internal/session"
)

func newAdviceCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newPredictCommand(ctx),
		newRecommendCommand(ctx),
		newMotivateCommand(ctx),
	}
}

func newPredictCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <title>",
		Short: "Estimate whether you will finish a show",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				p, err := s.Orchestrator.PredictCompletion(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d%% chance you finish it: %s\n", p.Probability, p.Reason)
				return nil
			})
		},
	}
}

func newRecommendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Suggest shows you have not watched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				recs := s.Orchestrator.Recommend(cmd.Context())
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no recommendations right now")
					return nil
				}
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					rows = append(rows, []string{r.Title, strconv.Itoa(r.MatchScore) + "%", r.Reason})
				}
				writeTable(cmd.OutOrStdout(), []string{"Title", "Match", "Why"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft})
				return nil
			})
		},
	}
}

func newMotivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "motivate <title>",
		Short: "Get a reason to keep watching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session.Session) error {
				fmt.Fprintln(cmd.OutOrStdout(), s.Orchestrator.Motivate(cmd.Context(), strings.Join(args, " ")))
				return nil
			})
		},
	}
}
