package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-battle-service/internal/infra/postgres"
)

// NewSeedCmd loads the sample question bank and demo topic completions into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample questions and completed topics into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}
			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			questions := sampleQuestions()
			if err := postgres.NewQuestionLoader(svc.pool).SaveQuestions(ctx, questions); err != nil {
				return err
			}
			topics := postgres.NewTopicDirectory(svc.db)
			for user, completed := range sampleTopics() {
				if err := topics.MarkCompleted(ctx, user, completed...); err != nil {
					return err
				}
			}
			logrus.Infof("seeded %d questions", len(questions))
			return nil
		},
	}
}

// NewRebuildProfileCmd recomputes a user's profile from the activity ledger.
// Run it while ingestion for that user is quiet.
func NewRebuildProfileCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "rebuild-profile",
		Short: "Recompute streak, XP and level for a user from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			profile, err := svc.engine.RebuildProfile(ctx, userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(profile)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to rebuild")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
