package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mgreenly/nu-agent/internal/profile"
	"github.com/mgreenly/nu-agent/plugin/ai/rag"
	"github.com/mgreenly/nu-agent/server"
	"github.com/mgreenly/nu-agent/store"
	"github.com/mgreenly/nu-agent/store/db"
)

var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "nu-agent-rag",
		Short: "Conversation memory retrieval for nu-agent.",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogger()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(ctx, instanceProfile, s)
			if err != nil {
				_ = s.Close()
				return fmt.Errorf("failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	queryCmd = &cobra.Command{
		Use:   "query <text>",
		Short: "Run one retrieval and print the formatted context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filters, err := queryFilters(cmd)
			if err != nil {
				return err
			}

			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			s, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(ctx, instanceProfile, s)
			if err != nil {
				_ = s.Close()
				return fmt.Errorf("failed to create server: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			rc, err := srv.Engine.Retrieve(ctx, strings.Join(args, " "), filters)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(map[string]any{
					"formatted_context": rc.FormattedContext,
					"conversations":     rc.Conversations,
					"exchanges":         rc.Exchanges,
					"metadata":          rc.Metadata,
				})
			}
			if rc.FormattedContext == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "no related conversations found")
				return nil
			}
			fmt.Fprintln(out, rc.FormattedContext)
			return nil
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), instanceProfile)
			if err != nil {
				return err
			}
			defer s.Close()
			slog.Info("database schema is up to date", slog.String("driver", instanceProfile.Driver))
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8082)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8082, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	addQueryFlags(queryCmd)

	viper.SetEnvPrefix("nu_agent")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, queryCmd, migrateCmd)
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("conversation", 0, "current conversation id, excluded from results")
	cmd.Flags().String("after", "", "only match summaries on or after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().String("before", "", "only match summaries on or before this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().Float64("recency-weight", -1, "blend recency into exchange ranking, between 0 and 1")
	cmd.Flags().Bool("json", false, "print the full result as JSON")
}

func setupLogger() {
	level := slog.LevelInfo
	if viper.GetString("mode") == "dev" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadProfile() (*profile.Profile, error) {
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
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return instanceProfile, nil
}

// openStore connects and migrates the database.
func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}
	s := store.New(dbDriver, instanceProfile)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func queryFilters(cmd *cobra.Command) (rag.Filters, error) {
	var filters rag.Filters
	flags := cmd.Flags()

	if flags.Changed("conversation") {
		id, _ := flags.GetInt64("conversation")
		filters.CurrentConversationID = &id
	}
	for _, f := range []struct {
		name   string
		target **time.Time
	}{
		{"after", &filters.AfterDate},
		{"before", &filters.BeforeDate},
	} {
		raw, _ := flags.GetString(f.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return filters, fmt.Errorf("invalid --%s: %w", f.name, err)
		}
		*f.target = &t
	}
	if flags.Changed("recency-weight") {
		w, _ := flags.GetFloat64("recency-weight")
		if w < 0 || w > 1 {
			return filters, fmt.Errorf("invalid --recency-weight %v: must be between 0 and 1", w)
		}
		filters.RecencyWeight = &w
	}
	return filters, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
