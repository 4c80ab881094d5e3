// Command proctor is the student client: it signs in, lists tests, opens a
// paper under proctoring and uploads the answer file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
