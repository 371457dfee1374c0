package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tarotq",
	Short: "Tarot reading queue CLI",
	Long:  `Command line tool for the tarot reading job queue: workers, dispatch, stats, and scheduled maintenance.`,
}

// SetInfo overrides the root command's identity, for embedders that reuse
// the console commands under their own binary name.
func SetInfo(use, short, long string) {
	rootCmd.Use = use
	rootCmd.Short = short
	rootCmd.Long = long
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func GetRoot() *cobra.Command {
	return rootCmd
}
