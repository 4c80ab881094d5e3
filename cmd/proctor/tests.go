package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List your tests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags, err := cli.flags()
		if err != nil {
			return err
		}
		buckets, err := cli.available(cmd.Context(), flags)
		if err != nil {
			return err
		}

		now := time.Now()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		printBucket(w, "ONGOING", buckets.Ongoing, now)
		printBucket(w, "UPCOMING", buckets.Upcoming, now)
		printBucket(w, "SUBMITTED", buckets.Submitted, now)
		printBucket(w, "EXPIRED", buckets.Expired, now)
		return w.Flush()
	},
}

func printBucket(w io.Writer, title string, tests []model.Test, now time.Time) {
	if len(tests) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintln(w, "ID\tTITLE\tPAPER\tSTARTS\tSTATUS")
	for _, t := range tests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.ContentType, t.StartTime.Local().Format("02 Jan 15:04"), status(t, now))
	}
	fmt.Fprintln(w)
}

func status(t model.Test, now time.Time) string {
	var s string
	switch {
	case t.HasSubmitted && t.Submission != nil && t.Submission.IsLate:
		s = "submitted (late)"
	case t.HasSubmitted:
		s = "submitted"
	case !t.HasStarted(now):
		s = "starts in " + formatLeft(t.StartTime.Sub(now))
	case t.TimeLeft(now) == 0:
		s = "expired"
	case t.InGracePeriod(now):
		s = formatLeft(t.TimeLeft(now)) + " left (late)"
	default:
		s = formatLeft(t.TimeLeft(now)) + " left"
	}
	if t.Compromise == model.CompromiseFlagged {
		s += ", LOCKED"
	}
	return s
}

// formatLeft renders a duration as HH:MM:SS.
func formatLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func init() {
	rootCmd.AddCommand(testsCmd)
}
