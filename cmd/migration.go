package cmd

import (
	"context"

	convRepo "github.com/AzielCF/az-wap-sales/conversation/repository"
	coreconfig "github.com/AzielCF/az-wap-sales/core/config"
	coreDB "github.com/AzielCF/az-wap-sales/core/database"
	"github.com/AzielCF/az-wap-sales/infrastructure/whatsapp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the conversation and device binding tables",
	Run: func(cmd *cobra.Command, _ []string) {
		db, err := coreDB.NewDatabase(coreconfig.Global)
		if err != nil {
			logrus.Fatalf("[MIGRATION] %v", err)
		}
		defer coreDB.Close(db)

		if err := RunMigrations(cmd.Context(), db); err != nil {
			logrus.Fatalf("[MIGRATION] %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

type migrator interface {
	Init(ctx context.Context) error
}

// RunMigrations ensures every table the service writes to exists.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	logrus.Info("[MIGRATION] Checking schema...")

	steps := map[string]migrator{
		"conversations":   convRepo.NewConversationGormStore(db),
		"device bindings": whatsapp.NewDeviceBindingGormStore(db),
	}
	for name, m := range steps {
		if err := m.Init(ctx); err != nil {
			return err
		}
		logrus.Infof("[MIGRATION] %s ready", name)
	}
	return nil
}
