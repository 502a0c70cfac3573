package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Curodenz/animeko/internal/config"
	"github.com/Curodenz/animeko/internal/history"
	"github.com/Curodenz/animeko/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := history.Configure(config.GetHistoryDBPath()); err != nil {
			return err
		}
		defer history.CloseDB()

		entries, err := history.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No archived downloads.")
			return nil
		}

		for _, e := range entries {
			when := time.UnixMilli(e.FinishedAt).Format("2006-01-02 15:04")
			line := fmt.Sprintf("%s  %-9s  %-8s  %s", shortID(e.ID), e.Status,
				utils.ConvertBytesToHumanReadable(e.DownloadedBytes), e.OutputPath)
			if e.MIME != "" {
				line += "  (" + e.MIME + ")"
			}
			if e.ErrorCode != "" {
				line += "  [" + e.ErrorCode + "]"
			}
			fmt.Printf("%s  %s\n", when, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
