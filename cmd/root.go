package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Curodenz/animeko/internal/config"
	"github.com/Curodenz/animeko/internal/engine"
	"github.com/Curodenz/animeko/internal/engine/types"
	"github.com/Curodenz/animeko/internal/history"
	"github.com/Curodenz/animeko/internal/tui"
	"github.com/Curodenz/animeko/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "animeko-dl [url]...",
	Short:   "A segmented HLS/MP4 media downloader",
	Long:    `animeko-dl fetches HLS playlists and regular media files in concurrent segments, with pause, resume and a terminal dashboard.`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")
		batchFile, _ := cmd.Flags().GetString("batch")
		headerFlags, _ := cmd.Flags().GetStringArray("header")
		concurrent, _ := cmd.Flags().GetInt("concurrent")
		headless, _ := cmd.Flags().GetBool("headless")
		exitWhenDone, _ := cmd.Flags().GetBool("exit-when-done")

		settings := initializeAppState()

		isMaster, err := AcquireLock()
		if err != nil {
			return fmt.Errorf("acquiring lock: %w", err)
		}
		if !isMaster {
			fmt.Fprintln(os.Stderr, "Error: animeko-dl is already running.")
			os.Exit(1)
		}
		defer ReleaseLock()

		if err := history.Configure(config.GetHistoryDBPath()); err != nil {
			utils.Debug("History archive unavailable: %v", err)
		}
		defer history.CloseDB()

		eng := engine.New(
			engine.WithUserAgent(settings.Connections.UserAgent),
			engine.WithProxyURL(settings.Connections.ProxyURL),
		)
		defer eng.Close()

		// Archive every terminal transition in the background.
		archiveCtx, stopArchive := context.WithCancel(context.Background())
		defer stopArchive()
		go archiveTerminalStates(archiveCtx, eng)

		urls := append([]string{}, args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}

		opts := settings.ToDownloadOptions(parseHeaderFlags(headerFlags))
		if concurrent > 0 {
			opts.MaxConcurrentSegments = concurrent
		}

		if outputDir == "" {
			outputDir = settings.General.DefaultDownloadDir
		}
		if outputDir == "" {
			outputDir = "."
		}
		outputDir = utils.EnsureAbsPath(outputDir)
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}

		if headless {
			return runHeadless(eng, urls, outputDir, opts)
		}
		return tui.Run(eng, tui.Config{
			Version:        Version,
			URLs:           urls,
			OutputDir:      outputDir,
			Options:        opts,
			ClipboardPaste: settings.General.ClipboardPaste,
			ExitWhenDone:   exitWhenDone,
			MakeOutputPath: func(rawurl string) string {
				return outputPathFor(outputDir, rawurl)
			},
		})
	},
}

// runHeadless starts the downloads and prints lifecycle transitions until
// every download is terminal or the process is interrupted.
func runHeadless(eng *engine.Engine, urls []string, outputDir string, opts types.DownloadOptions) error {
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted, pausing downloads...")
		eng.PauseAll()
		cancel()
	}()

	flow := eng.ProgressFlow(ctx)

	ids := make(map[string]bool)
	lastStatus := make(map[string]types.DownloadStatus)
	for _, rawurl := range urls {
		id, err := eng.Download(ctx, rawurl, outputPathFor(outputDir, rawurl), opts)
		ids[id] = true
		if err != nil {
			fmt.Printf("Failed: %s: %v\n", rawurl, err)
			lastStatus[id] = types.StatusFailed
		} else {
			fmt.Printf("Started: %s [%s]\n", rawurl, shortID(id))
		}
	}

	remaining := func() int {
		n := 0
		for id := range ids {
			if st, ok := eng.State(id); ok && !st.Status.Terminal() {
				n++
			}
		}
		return n
	}

	for remaining() > 0 {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-flow:
			if !ok {
				return nil
			}
			if !ids[p.ID] || lastStatus[p.ID] == p.Status {
				continue
			}
			lastStatus[p.ID] = p.Status
			printTransition(p)
		}
	}

	return nil
}

func printTransition(p types.DownloadProgress) {
	switch p.Status {
	case types.StatusMerging:
		fmt.Printf("Merging: %s [%s]\n", p.URL, shortID(p.ID))
	case types.StatusCompleted:
		fmt.Printf("Completed: %s [%s] (%s)\n", p.URL, shortID(p.ID),
			utils.ConvertBytesToHumanReadable(p.DownloadedBytes))
	case types.StatusFailed:
		fmt.Printf("Error: %s [%s]: %v\n", p.URL, shortID(p.ID), p.Err)
	case types.StatusPaused:
		fmt.Printf("Paused: %s [%s]\n", p.URL, shortID(p.ID))
	case types.StatusCanceled:
		fmt.Printf("Canceled: %s [%s]\n", p.URL, shortID(p.ID))
	}
}

// archiveTerminalStates mirrors terminal states into the history archive.
func archiveTerminalStates(ctx context.Context, eng *engine.Engine) {
	recorded := make(map[string]types.DownloadStatus)
	for states := range eng.DownloadStatesFlow(ctx) {
		for _, st := range states {
			if !st.Status.Terminal() || recorded[st.ID] == st.Status {
				continue
			}
			recorded[st.ID] = st.Status
			if err := history.Record(st); err != nil && err != history.ErrNotConfigured {
				utils.Debug("Failed to archive %s: %v", st.ID, err)
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringP("output", "o", "", "Output directory")
	rootCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	rootCmd.Flags().StringArrayP("header", "H", nil, "Extra HTTP header ('Name: value'), repeatable")
	rootCmd.Flags().IntP("concurrent", "n", 0, "Max concurrent segment fetches per download")
	rootCmd.Flags().Bool("headless", false, "Run without the dashboard")
	rootCmd.Flags().Bool("exit-when-done", false, "Exit when all downloads complete")
	rootCmd.SetVersionTemplate("animeko-dl version {{.Version}}\n")
}

// initializeAppState sets up directories, logging and settings.
func initializeAppState() *config.Settings {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create app directories: %v\n", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		settings = config.DefaultSettings()
	}

	if settings.General.Debug {
		utils.ConfigureDebug(config.GetLogsDir())
		utils.CleanupLogs(config.GetLogsDir(), settings.General.LogRetentionCount)
	}
	return settings
}
