package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSubjectsCmd prints the subject/chapter/quiz catalog.
func NewSubjectsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "subjects [subjectId]",
		Short: "Browse subjects, chapters and quizzes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				subjects, err := rt.client.Subjects(ctx)
				if err != nil {
					return err
				}
				for _, s := range subjects {
					fmt.Fprintf(out, "%d\t%s\t%s\n", s.ID, s.Name, s.Description)
				}
				return nil
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			subject, err := rt.client.Subject(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", subject.Name)
			for _, ch := range subject.Chapters {
				chapter, err := rt.client.Chapter(ctx, ch.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  chapter %d: %s\n", chapter.ID, chapter.Name)
				for _, q := range chapter.Quizzes {
					fmt.Fprintf(out, "    quiz %d  %d min  %s\n", q.ID, q.Duration, q.Remarks)
				}
			}
			return nil
		},
	}
}
