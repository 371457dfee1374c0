package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mimivibe/tarotq/pkg/config"
	"github.com/mimivibe/tarotq/pkg/queue"
	"github.com/mimivibe/tarotq/pkg/root"
	"github.com/mimivibe/tarotq/pkg/telemetry"
)

var (
	dispatchUserID    string
	dispatchQuestion  string
	dispatchCards     int
	dispatchDedupeKey string
	dispatchLocale    string
)

var dispatchCmd = &cobra.Command{
	Use:   "queue:dispatch",
	Short: "Enqueue a reading job",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.SetGlobalLogger()

		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}

		userID, err := uuid.Parse(dispatchUserID)
		if err != nil {
			log.Fatal().Err(err).Msg("--user must be a UUID")
		}
		if dispatchCards != 3 && dispatchCards != 5 {
			log.Fatal().Int("cards", dispatchCards).Msg("--cards must be 3 or 5")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		b, err := buildBackend(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("Failed to build queue backend")
		}

		producer := queue.NewProducer(b.queue, b.dedupeGate(), cfg.DedupeTTL)

		payload := queue.JobPayload{
			UserID:        userID,
			Question:      dispatchQuestion,
			CardCount:     dispatchCards,
			SchemaVersion: "1",
			PromptVersion: "v2025-11-20-a",
			DedupeKey:     dispatchDedupeKey,
			Metadata:      map[string]string{"locale": dispatchLocale, "source": "cli"},
		}

		jobID, err := producer.Dispatch(ctx, payload)
		if errors.Is(err, queue.ErrDuplicate) {
			log.Warn().Str("dedupe_key", dispatchDedupeKey).Msg("Duplicate submission suppressed")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Dispatch failed")
		}

		fmt.Println(jobID)
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchUserID, "user", "", "User UUID requesting the reading")
	dispatchCmd.Flags().StringVar(&dispatchQuestion, "question", "", "Question to be answered")
	dispatchCmd.Flags().IntVar(&dispatchCards, "cards", 3, "Number of cards to draw (3 or 5)")
	dispatchCmd.Flags().StringVar(&dispatchDedupeKey, "dedupe-key", "", "Optional dedupe key")
	dispatchCmd.Flags().StringVar(&dispatchLocale, "locale", "en", "Locale for the reading")
	dispatchCmd.MarkFlagRequired("user")
	dispatchCmd.MarkFlagRequired("question")

	root.GetRoot().AddCommand(dispatchCmd)
}
