package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/spotigui/spotigui/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "settings file (default ~/.config/spotigui/config.toml)")
	prefsPath := flag.String("prefs", "", "preferences file (default ~/.config/spotigui/prefs.toml)")
	envFile := flag.String("env-file", "", "dotenv file with CLIENT_ID, CLIENT_SECRET and REDIRECT_URI (default ./.env)")
	pollMS := flag.Int("poll", 0, "playback poll interval in milliseconds (default 1000)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error")
	logout := flag.Bool("logout", false, "remove the cached session and exit")
	flag.Parse()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		EnvFile:    *envFile,
		LogLevel:   *logLevel,
	}
	if ms := *pollMS; ms > 0 {
		opts.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if *logout {
		if err := app.Logout(opts); err != nil {
			fmt.Fprintf(os.Stderr, "spotigui: %v\n", err)
			return 1
		}
		fmt.Println("Signed out.")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "spotigui: %v\n", err)
		return 1
	}
	return 0
}
