// killfeed detects and indexes killfeed events from recorded gameplay
// videos, and optionally cuts highlight clips around them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"killfeed/config"
	"killfeed/index"
	"killfeed/pipeline"
	"killfeed/roi"
	"killfeed/watch"
)

var (
	cfgFile     string
	verbose     bool
	enableClips bool
	roiFrame    int

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "killfeed",
	Short: "Detect and index killfeed events from gameplay recordings",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		initLogging(cfg.Verbosity.LogLevel, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./killfeed.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	analyzeCmd.Flags().BoolVar(&enableClips, "clip", false, "extract video clips for detected events")
	batchCmd.Flags().BoolVar(&enableClips, "clip", false, "extract video clips for detected events")
	roiCmd.Flags().IntVar(&roiFrame, "frame", 0, "frame number to pick the region on")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(roiCmd)
}

// initLogging configures the global zerolog logger with a console writer.
func initLogging(configLevel string, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(configLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Analyze a single video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if enableClips {
			cfg.Clipping.Enabled = true
		}
		runner := pipeline.NewRunner(cfg, log.Logger)
		result, err := runner.Process(args[0])
		if err != nil {
			return err
		}
		if len(result.Events) == 0 {
			log.Warn().Str("video", result.VideoID).Msg("no events found")
		}
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <folder>",
	Short: "Process all video files in a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if enableClips {
			cfg.Clipping.Enabled = true
		}

		videos, err := findVideos(args[0])
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			log.Warn().Str("folder", args[0]).Msg("no video files found")
			return nil
		}
		log.Info().Int("count", len(videos)).Msg("found videos to process")

		store, err := index.Open(cfg.IndexPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runner := pipeline.NewRunner(cfg, log.Logger)
		for _, path := range videos {
			seen, err := store.Seen(path)
			if err != nil {
				return err
			}
			if seen {
				log.Debug().Str("path", path).Msg("already processed, skipping")
				continue
			}

			result, err := runner.Process(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("processing failed, continuing")
				continue
			}
			if err := store.Mark(path, result.VideoID, result.RunID, len(result.Events)); err != nil {
				log.Error().Err(err).Str("path", path).Msg("failed to record processed video")
			}
		}
		log.Info().Msg("batch processing complete")
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <folder>",
	Short: "Watch a folder and process new videos automatically",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := index.Open(cfg.IndexPath)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := pipeline.NewRunner(cfg, log.Logger)
		watcher := watch.New(cfg, runner, store, log.Logger)
		return watcher.Run(ctx, args[0])
	},
}

var roiCmd = &cobra.Command{
	Use:   "roi <video>",
	Short: "Interactively select the killfeed region and save it to config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := roi.Pick(args[0], roiFrame, log.Logger)
		if err != nil {
			return err
		}
		if sel == nil {
			return nil
		}
		if err := roi.Apply(sel, cfg, cfgFile); err != nil {
			return fmt.Errorf("save ROI to config: %w", err)
		}
		log.Info().Msg("ROI saved to config")
		return nil
	},
}

// findVideos lists video files directly inside folder, sorted by name.
func findVideos(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !cfg.MatchesExtension(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(videos)
	return videos, nil
}
