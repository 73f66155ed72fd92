// README: Smoke runner; executes HTTP/DB/Redis checks against a running dispatch API and prints results.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	runner := NewRunner(cfg)
	results := runner.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL       string
	DSN           string
	RedisAddr     string
	MigrationPath string
	CustomerID    string
	Date          string
	Timeout       time.Duration
	Concurrency   int
	Duration      time.Duration
}

// loadConfig reads flags first, then DISPATCH_SMOKE_* variables (flag names
// upper-cased with '-' as '_'), then defaults. The DSN and Redis address also
// fall back to the API's own DISPATCH_DB_DSN and DISPATCH_REDIS_ADDR.
func loadConfig(args []string) (Config, error) {
	fs := pflag.NewFlagSet("smoke", pflag.ContinueOnError)
	fs.String("base-url", "http://localhost:8080", "API base URL")
	fs.String("dsn", "", "Postgres DSN (empty skips DB checks)")
	fs.String("redis", "", "Redis address (empty skips Redis checks)")
	fs.String("migration", "migrations/0001_init.sql", "Migration SQL path")
	fs.String("customer", "C001", "Existing customer id used for bookings")
	fs.String("date", time.Now().AddDate(1, 0, 0).Format("2006-01-02"), "Booking date (YYYY-MM-DD)")
	fs.Duration("timeout", 60*time.Second, "Total timeout")
	fs.Int("concurrency", 10, "Concurrency for load checks")
	fs.Duration("duration", 5*time.Second, "Duration for load checks")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("DISPATCH_SMOKE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("dsn", "DISPATCH_SMOKE_DSN", "DISPATCH_DB_DSN"); err != nil {
		return Config{}, err
	}
	if err := v.BindEnv("redis", "DISPATCH_SMOKE_REDIS", "DISPATCH_REDIS_ADDR"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:       strings.TrimRight(v.GetString("base-url"), "/"),
		DSN:           v.GetString("dsn"),
		RedisAddr:     v.GetString("redis"),
		MigrationPath: v.GetString("migration"),
		CustomerID:    v.GetString("customer"),
		Date:          v.GetString("date"),
		Timeout:       v.GetDuration("timeout"),
		Concurrency:   v.GetInt("concurrency"),
		Duration:      v.GetDuration("duration"),
	}
	switch {
	case cfg.BaseURL == "":
		return Config{}, fmt.Errorf("base-url is required")
	case cfg.Timeout <= 0 || cfg.Duration <= 0:
		return Config{}, fmt.Errorf("timeout and duration must be positive")
	case cfg.Concurrency <= 0:
		return Config{}, fmt.Errorf("concurrency must be positive")
	}
	return cfg, nil
}
