package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewResultsCmd prints the caller's results for a quiz.
func NewResultsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "results <quizId>",
		Short: "Show your results for a completed quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quizID, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			return printResults(cmd.Context(), rt, quizID, cmd.OutOrStdout())
		},
	}
}

func printResults(ctx context.Context, rt *runtime, quizID int64, out io.Writer) error {
	res, err := rt.results().Load(ctx, quizID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nQuiz %d: %d/%d correct (%d%%), time spent %s\n",
		quizID, res.CorrectAnswers, res.TotalQuestions, res.ScorePercentage, clockText(res.TimeSpent))
	for i, q := range res.Questions {
		verdict := "wrong"
		switch {
		case q.IsCorrect:
			verdict = "correct"
		case q.SelectedOption == nil:
			verdict = "unanswered"
		}
		fmt.Fprintf(out, "%2d. [%s] %s\n", i+1, verdict, q.Statement)
		for j, opt := range q.Options {
			mark := "  "
			if j+1 == q.CorrectOption {
				mark = "✓ "
			}
			if q.SelectedOption != nil && *q.SelectedOption == j+1 && !q.IsCorrect {
				mark = "✗ "
			}
			fmt.Fprintf(out, "      %s%d) %s\n", mark, j+1, opt)
		}
	}
	return nil
}
