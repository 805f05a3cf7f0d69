package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/plugin/ai"
	"github.com/strideai/coach/server"
	"github.com/strideai/coach/store"
	"github.com/strideai/coach/store/db"
)

const version = "0.1.0"

const greetingBanner = `
   ___ ___   __ _  ___| |__
  / __/ _ \ / _` + "`" + ` |/ __| '_ \
 | (_| (_) | (_| | (__| | | |
  \___\___/ \__,_|\___|_| |_|

`

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: `An AI fitness coach context and personalization service.`,
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid profile", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			os.Exit(1)
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		defer storeInstance.Close()

		aiConfig := ai.NewConfigFromProfile(instanceProfile)
		if !aiConfig.Enabled {
			// Without an API key the service still runs end to end on the
			// deterministic in-process providers.
			slog.Warn("AI providers not configured, running with deterministic local providers")
			aiConfig.Enabled = true
			aiConfig.Embedding.Provider = "mock"
			aiConfig.LLM.Provider = "mock"
		}

		coach, err := ai.NewCoach(aiConfig, storeInstance, ai.Dependencies{
			Profiles: &localProfileProvider{},
			Activity: &localActivityProvider{},
			History:  &localHistoryProvider{},
		})
		if err != nil {
			slog.Error("failed to create coach", "error", err)
			os.Exit(1)
		}

		s := server.NewServer(instanceProfile, storeInstance, coach)

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-c
			slog.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		}()

		fmt.Print(greetingBanner)
		fmt.Printf("Version %s has been started on port %d\n", version, instanceProfile.Port)
		if err := s.Start(ctx); err != nil {
			slog.Error("server exited", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8231)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8231, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("coach")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}
