// Command staffctl is the field staff terminal client: sign in, work through
// assigned jobs, and keep accept/reject actions queued while offline.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	serverFlag     string
	appVersionFlag string
	stateDirFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "staffctl",
	Short: "Field staff client for fieldops",
	Long: `staffctl talks to a fieldops server on behalf of one staff member.

Accept and reject work offline: when the server cannot be reached the action
is stored locally and replayed, in order, the next time a command finds the
server reachable (or on "staffctl sync").

Examples:
  staffctl signin --code S-100 --pin 2468
  staffctl jobs list --status assigned
  staffctl accept <job-id> --lat 51.5007 --lon -0.1246
  staffctl wizard open <job-id>
  staffctl ask <job-id> "where is the stopcock?"`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", envOr("FIELDOPS_SERVER", "http://localhost:8080"), "fieldops server base URL")
	rootCmd.PersistentFlags().StringVar(&appVersionFlag, "app-version", envOr("FIELDOPS_APP_VERSION", version), "version reported in X-App-Version")
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", envOr("FIELDOPS_STATE_DIR", defaultStateDir()), "directory for the session and the offline queue")

	rootCmd.AddCommand(signinCmd, signoutCmd, jobsCmd, acceptCmd, rejectCmd, startCmd, requirementCmd, wizardCmd, askCmd, syncCmd, queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
