package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unifiedui/docdb-gateway/internal/config"
)

type cliFlags struct {
	configFile string
	connection string
	database   string
	username   string
	password   string
	host       string
	port       int
	verbosity  int
}

var flags cliFlags

var rootCmd = &cobra.Command{
	Use:   "docdb-gateway",
	Short: "Read-only HTTP gateway for MongoDB collections",
	Long: `DocDB Gateway serves read queries against a MongoDB database over HTTP.

Every collection is exposed as GET /{collection} and answers with a JSON array
of the matching documents, streamed as they are read:

  GET /users?query={"active":true}&sort=name&limit=20&projection=-password

Settings come from the environment (and a .env file), then an optional YAML
file given with --config, then the flags below.

Examples:
  # Serve the "shop" database on the default address
  docdb-gateway -c mongodb://localhost:27017 -d shop

  # Listen on all interfaces with debug logging
  docdb-gateway -c mongodb://db:27017 -d shop -H 0.0.0.0 -P 8080 -v`,
	SilenceUsage: true,
	RunE:         runServer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindFlags(rootCmd)
}

func bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "YAML config file")
	f.StringVarP(&flags.connection, "connection", "c", "", "MongoDB connection URI (required)")
	f.StringVarP(&flags.database, "database", "d", "", "database to serve (required)")
	f.StringVarP(&flags.username, "username", "u", "", "database user")
	f.StringVarP(&flags.password, "password", "p", "", "database password, requires --username")
	f.StringVarP(&flags.host, "host", "H", "", "listen host (default 127.0.0.1)")
	f.IntVarP(&flags.port, "port", "P", 0, "listen port (default 8080)")
	f.CountVarP(&flags.verbosity, "verbose", "v", "raise log verbosity, repeat for more")
}

// loadConfig layers environment, config file and flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags.configFile != "" {
		if err := cfg.LoadFile(flags.configFile); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("connection") {
		cfg.DocDB.URI = flags.connection
	}
	if changed("database") {
		cfg.DocDB.Database = flags.database
	}
	if changed("username") {
		cfg.DocDB.Username = flags.username
	}
	if changed("password") {
		cfg.DocDB.Password = flags.password
	}
	if changed("host") {
		cfg.Server.Host = flags.host
	}
	if changed("port") {
		cfg.Server.Port = flags.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
