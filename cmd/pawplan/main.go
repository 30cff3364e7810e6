package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pawplan/internal/backend"
	"pawplan/internal/config"
	appLog "pawplan/internal/log"
	"pawplan/internal/model"
	"pawplan/internal/organizer"
	"pawplan/internal/server"
)

type flagConfig struct {
	configPath string
	listen     string
	owner      string
	agenda     bool
	watch      bool
	date       string
	verbose    bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI overrides.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.owner != "" {
		conf.Owner = flags.owner
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.agenda || flags.watch {
		if err := runAgenda(ctx, conf, flags.date, flags.watch); err != nil {
			appLog.Error("agenda failed", err)
			os.Exit(1)
		}
		return
	}

	if err := runServe(ctx, conf); err != nil {
		appLog.Error("server failed", err)
		os.Exit(1)
	}
	appLog.Info("pawplan exiting")
}

// runServe runs the collection service until the context is canceled.
func runServe(ctx context.Context, conf *config.Config) error {
	srv := server.NewServer(conf)
	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: srv.Handler(),
	}

	appLog.Info("pawplan collection service starting", "listen", "http://"+conf.Listen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runAgenda connects as a client, opens the event session, and prints the
// day's schedule. In watch mode it stays connected, reprinting on every
// change-feed delivery, with stalled sessions recovered on the configured
// cron schedule.
func runAgenda(ctx context.Context, conf *config.Config, date string, watch bool) error {
	if conf.Owner == "" {
		return errors.New("no owner configured (set owner in config or pass -owner)")
	}

	day := model.Date(date)
	if date == "" {
		day = today(conf.Timezone)
	}
	if !day.Valid() {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
	}

	org := organizer.New(backend.NewClient(conf.BackendURL), conf.Owner)
	defer org.Close()
	if err := org.Open(ctx); err != nil {
		if !watch {
			return err
		}
		// Watch mode keeps going: the session is stuck in Opening and the
		// auto-refresh schedule is the way out.
		appLog.Warn("open failed, waiting for auto refresh", "err", err)
	}

	printAgenda(org, day)
	if !watch {
		return nil
	}

	org.OnEventsChange(func() {
		printAgenda(org, day)
	})
	if conf.RefreshCron != "" {
		if err := org.StartAutoRefresh(conf.RefreshCron); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}

func printAgenda(org *organizer.Organizer, day model.Date) {
	agenda := org.Agenda(day)
	if len(agenda) == 0 {
		fmt.Printf("nothing scheduled on %s\n", day)
		return
	}
	for _, ev := range agenda {
		line := fmt.Sprintf("%s  %-10s %s", ev.Time, ev.Category, ev.Title)
		if ev.Location != "" {
			line += " @ " + ev.Location
		}
		fmt.Println(line)
	}
}

func today(tz string) model.Date {
	loc := time.Local
	if tz != "" && tz != "Local" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			appLog.Warn("unknown timezone, using local", "timezone", tz)
		}
	}
	return model.NewDate(time.Now().In(loc))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.owner, "owner", "", "Owner identity for client modes (overrides config if set)")
	flag.BoolVar(&cfg.agenda, "agenda", false, "Print the day's agenda and exit instead of serving")
	flag.BoolVar(&cfg.watch, "watch", false, "Like -agenda but stay connected and reprint on changes")
	flag.StringVar(&cfg.date, "date", "", "Agenda date as YYYY-MM-DD (default: today)")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/pawplan/config.yaml"
	}
	return "./pawplan.yaml"
}
