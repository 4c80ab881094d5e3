package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var submitCmd = &cobra.Command{
	Use:   "submit <test-id> <file>",
	Short: "Upload an answer file without opening the paper",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		flags, err := cli.flags()
		if err != nil {
			return err
		}
		test, err := cli.findTest(ctx, flags, args[0])
		if err != nil {
			return err
		}
		file, err := model.AnswerFileFromPath(args[1])
		if err != nil {
			return err
		}

		ctrl, err := proctor.NewController(ctx, *test, proctor.Deps{
			Backend:   cli.tests,
			Flags:     flags,
			Screen:    newTerminalScreen(int(os.Stdin.Fd()), os.Stdout),
			Log:       cli.log,
			OnRefresh: cli.refresher(flags),
		})
		if err != nil {
			return err
		}
		defer ctrl.Shutdown()

		if err := ctrl.SelectFile(ctx, file); err != nil {
			return err
		}
		if err := ctrl.Submit(ctx); err != nil {
			return err
		}
		printSubmitted(ctrl.State())
		return nil
	},
}

func printSubmitted(s proctor.State) {
	if s.Submission == nil {
		fmt.Println("Your answer was already submitted.")
		return
	}
	late := ""
	if s.Submission.IsLate {
		late = " (late)"
	}
	fmt.Printf("Submitted %s at %s%s\n", s.Submission.FileName, s.Submission.SubmittedAt.Local().Format("15:04:05"), late)
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
