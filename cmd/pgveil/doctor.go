package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pgveil "github.com/pgveil/pgveil"
	"github.com/pgveil/pgveil/internal/access"
	"github.com/pgveil/pgveil/internal/classify"
	"github.com/pgveil/pgveil/internal/meta"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", ".pgveil/config.json", "Path to configuration file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath)
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "pgveil %s\n\n", meta.Version)

	// Load and validate config
	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'pgveil doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	doctorCheckConnectivity(w, useColor, config)

	fmt.Fprintln(w)
	printPolicySummary(w, useColor, config)

	fmt.Fprintln(w)
	printConnectionSnippet(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgveil.ServerConfig, bool) {
	allPassed := true

	// Check 1: Config file exists and is valid JSON
	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	var config pgveil.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid JSON: %v", err))
		allPassed = false
		return nil, allPassed
	}
	printCheck(w, useColor, true, "Config file is valid JSON")

	// Check 2: connection.dbname is set
	if config.Connection.DBName == "" {
		printCheck(w, useColor, false, "connection.dbname is set")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))
	}

	// Check 3: server.port > 0
	if config.Server.Port <= 0 {
		printCheck(w, useColor, false, "server.port is > 0")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
	}

	// Check 4: Health check path set when enabled
	if config.Server.HealthCheckEnabled {
		if config.Server.HealthCheckPath == "" {
			printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
		}
	}

	// Check 5: access.level is recognized
	level, err := access.ParseLevel(config.Access.Level)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("access.level is valid: %v", err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("access.level is valid (%s)", level))
		if level == access.LevelCustom {
			for i, token := range config.Access.CustomAllowedCommands {
				if classify.Parse(token) == classify.Unknown && !strings.EqualFold(strings.TrimSpace(token), "UNKNOWN") {
					printCheck(w, useColor, false, fmt.Sprintf("access.custom_allowed_commands[%d] (%q) is not a recognized command; it will whitelist UNKNOWN", i, token))
					allPassed = false
				}
			}
		}
	}

	// Check 6: command_timeouts keys are recognized commands
	for keyword := range config.Query.CommandTimeouts {
		if classify.Parse(keyword) == classify.Unknown {
			printCheck(w, useColor, false, fmt.Sprintf("query.command_timeouts key %q is not a recognized command", keyword))
			allPassed = false
		}
	}

	// Check 7: Regex patterns compile
	regexOK := true

	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}

	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return &config, allPassed
}

// doctorCheckConnectivity opens a pool and pings the database. The
// connection string comes from PGVEIL_PG_CONNSTRING; doctor never prompts
// for credentials, so without it the check is skipped.
func doctorCheckConnectivity(w io.Writer, useColor bool, config *pgveil.ServerConfig) {
	connString := os.Getenv("PGVEIL_PG_CONNSTRING")
	if connString == "" {
		fmt.Fprintln(w, "  - Database connection check skipped (set PGVEIL_PG_CONNSTRING to enable)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := doctorPing(ctx, connString, config.Config); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database connection: %v", err))
		return
	}
	printCheck(w, useColor, true, fmt.Sprintf("Database connection OK (%s)", config.Connection.DBName))
}

// doctorPing builds the engine and pings the database. New panics on an
// invalid engine config; doctor reports that as a failed check instead of
// crashing.
func doctorPing(ctx context.Context, connString string, config pgveil.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	veil, err := pgveil.New(ctx, connString, config, zerolog.Nop())
	if err != nil {
		return err
	}
	defer veil.Close(ctx)

	return veil.Ping(ctx)
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printPolicySummary prints the effective access level, permitted commands,
// and masking policy resolved from the config.
func printPolicySummary(w io.Writer, useColor bool, config *pgveil.ServerConfig) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	heading("Effective Policy")
	fmt.Fprintln(w)

	level, err := access.ParseLevel(config.Access.Level)
	if err == nil {
		engine, engErr := access.NewEngine(access.Config{
			Level:          level,
			CustomCommands: config.Access.CustomAllowedCommands,
		})
		if engErr == nil {
			fmt.Fprintf(w, "  Access level:       %s\n", engine.Level())
			permitted := engine.Permitted()
			if len(permitted) == 0 {
				fmt.Fprintf(w, "  Permitted commands: (none; every statement is denied)\n")
			} else {
				fmt.Fprintf(w, "  Permitted commands: %s\n", strings.Join(permitted, ", "))
			}
		}
	}

	if config.Masking.MaskingEnabled() {
		fmt.Fprintf(w, "  Masking:            enabled\n")
		fmt.Fprintf(w, "  Hidden tables:      %d\n", len(config.Masking.HiddenTables))
		fmt.Fprintf(w, "  Hidden columns:     %d\n", len(config.Masking.HiddenColumns))
		fmt.Fprintf(w, "  Extra sensitive:    %d\n", len(config.Masking.ExtraSensitiveFields))
	} else {
		fmt.Fprintf(w, "  Masking:            disabled\n")
	}
}

// printConnectionSnippet prints an MCP client config snippet for the server.
func printConnectionSnippet(w io.Writer, useColor bool, config *pgveil.ServerConfig) {
	url := fmt.Sprintf("http://localhost:%d/mcp", config.Server.Port)

	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	heading("Client Connection")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Streamable HTTP endpoint:\n\n")
	fmt.Fprintf(w, "    %s\n\n", url)
	fmt.Fprintf(w, "  MCP client config snippet:\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "pgveil": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
}
