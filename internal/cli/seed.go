package cli

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"school-quiz-service/internal/config"
)

// NewSeedCmd writes the demo quiz catalog into Postgres so a freshly
// migrated database can serve the same content as the storage-free mode.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo quizzes into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			db := openBun(cfg.Postgres.URL)
			defer db.Close()

			for id, quiz := range sampleQuizzes() {
				raw, err := json.Marshal(quiz)
				if err != nil {
					return err
				}
				_, err = db.ExecContext(cmd.Context(), `
					INSERT INTO quiz_catalog (id, data) VALUES (?, ?)
					ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, id, string(raw))
				if err != nil {
					return err
				}
				log.Printf("seeded quiz %s", id)
			}
			return nil
		},
	}
}
