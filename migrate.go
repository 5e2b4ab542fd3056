package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sarthi/catalog"
	"sarthi/db"
)

func NewMigrateCommand() *cobra.Command {
	f := &ConfigFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the stage and category catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.Load()
			if err != nil {
				return errors.WithMessage(err, "could not load configuration")
			}
			cat, err := catalog.FromConfig(cfg)
			if err != nil {
				return errors.WithMessage(err, "invalid workflow catalog")
			}

			database, err := db.Connect(cfg)
			if err != nil {
				return errors.WithMessage(err, "could not connect to database")
			}
			defer database.Close()

			if err := db.Migrate(database, cat); err != nil {
				return errors.WithMessage(err, "could not migrate database")
			}
			log.Info("database migrated")
			return nil
		},
	}
	f.BindFlags(cmd.Flags())
	return cmd
}
