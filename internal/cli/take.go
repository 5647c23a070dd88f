package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quiz-runner/internal/app"
	"quiz-runner/internal/config"
	"quiz-runner/internal/domain"
)

const takeHelp = "answer 1-4, c clear, n next, p prev, g <n> jump, s submit, q quit"

// NewTakeCmd runs one quiz attempt in the terminal.
func NewTakeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "take <quizId>",
		Short: "Take a timed quiz in the terminal",
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
			return takeQuiz(cmd.Context(), rt, quizID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func takeQuiz(ctx context.Context, rt *runtime, quizID int64, in io.Reader, out io.Writer) error {
	m, err := rt.flow().Open(ctx, quizID)
	if errors.Is(err, domain.ErrAlreadyAttempted) {
		fmt.Fprintln(out, "You have already completed this quiz. Your results:")
		return printResults(ctx, rt, quizID, out)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := m.Run(runCtx, config.TTLDuration(rt.cfg.Quiz.TickInterval, time.Second)); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Warn().Err(err).Msg("tick loop stopped")
		}
	}()

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-runCtx.Done():
				return
			}
		}
	}()

	render(out, m)
	reported := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			switch snap.State {
			case app.StateSubmitted:
				fmt.Fprintf(out, "\nTime is up. %s\n", m.Result().Message)
				return printResults(ctx, rt, quizID, out)
			case app.StateError:
				if snap.Error != reported {
					reported = snap.Error
					fmt.Fprintf(out, "\nerror: %s (type s to retry)\n", snap.Error)
				}
			}
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\nInput closed; progress saved, run take again to resume.")
				return nil
			}
			done, err := handleCommand(ctx, m, strings.TrimSpace(line), out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				if m.State() == app.StateSubmitted {
					fmt.Fprintf(out, "%s\n", m.Result().Message)
					return printResults(ctx, rt, quizID, out)
				}
				fmt.Fprintln(out, "Progress saved, run take again to resume.")
				return nil
			}
			render(out, m)
		}
	}
}

// handleCommand applies one line of input. done reports that the session should end.
func handleCommand(ctx context.Context, m *app.Machine, line string, out io.Writer) (done bool, err error) {
	current := m.Snapshot().Index
	questions := m.Questions()
	switch {
	case line == "":
		return false, nil
	case line == "q":
		return true, nil
	case line == "s":
		if _, err := m.Submit(ctx); err != nil {
			return false, err
		}
		return true, nil
	case line == "n":
		_, err = m.Next(ctx)
		return false, err
	case line == "p":
		_, err = m.Prev(ctx)
		return false, err
	case line == "c":
		return false, m.ClearAnswer(ctx, questions[current].ID)
	case strings.HasPrefix(line, "g "):
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "g ")))
		if convErr != nil {
			return false, fmt.Errorf("jump needs a question number")
		}
		_, err = m.GoTo(ctx, n-1)
		return false, err
	}
	option, convErr := strconv.Atoi(line)
	if convErr != nil {
		fmt.Fprintln(out, takeHelp)
		return false, nil
	}
	return false, m.SelectAnswer(ctx, questions[current].ID, option)
}

func render(out io.Writer, m *app.Machine) {
	snap := m.Snapshot()
	questions := m.Questions()
	if len(questions) == 0 {
		return
	}
	q := questions[snap.Index]
	fmt.Fprintf(out, "\nQuestion %d/%d  [%s left, %d answered]\n%s\n",
		snap.Index+1, len(questions), clockText(snap.Remaining), snap.Answers.Answered(), q.Statement)
	selected := snap.Answers[q.ID]
	for i, opt := range q.Options() {
		mark := " "
		if selected != nil && *selected == i+1 {
			mark = "*"
		}
		fmt.Fprintf(out, " %s %d) %s\n", mark, i+1, opt)
	}
	fmt.Fprintf(out, "(%s) > ", takeHelp)
}

func clockText(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
