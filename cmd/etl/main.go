package main

import (
	"fmt"
	"os"

	"QuakeSync/internal/adapter/usgs"
	"QuakeSync/internal/config"
	"QuakeSync/internal/database"
	"QuakeSync/internal/model"
	"QuakeSync/internal/observability"
	"QuakeSync/internal/service"
	"QuakeSync/internal/utils/logger"

	"github.com/spf13/cobra"
)

var (
	startTime string
	endTime   string
	params    map[string]string
)

var rootCmd = &cobra.Command{
	Use:           "quakesync-etl",
	Short:         "Fetch one time window of USGS earthquakes into the database",
	Example:       "  quakesync-etl --start 2024-01-01 --end 2024-01-31 --param minmagnitude=4.5",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := service.ParseDateRange(startTime, endTime)
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		db, err := database.Open(cfg.Database, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		etl := service.NewETLService(db, usgs.NewFactory(&cfg.USGS, log), cfg.USGS.Format, observability.NewMetrics(), nil, log)
		id, err := etl.Run(cmd.Context(), model.DateOf(start), model.DateOf(end), params)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id.String())
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&startTime, "start", "", "start date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&endTime, "end", "", "end date (YYYY-MM-DD)")
	rootCmd.Flags().StringToStringVar(&params, "param", nil, "extra USGS query parameter, k=v (repeatable)")
	_ = rootCmd.MarkFlagRequired("start")
	_ = rootCmd.MarkFlagRequired("end")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
