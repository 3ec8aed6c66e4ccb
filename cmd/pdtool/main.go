package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/trdp-go/pdcore/internal/pd"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		ownIP    string
		port     int
		replyIP  string
		targetIP string
		comID    uint32
		cycle    time.Duration
		timeout  time.Duration
		verbose  bool
	)

	flag.StringVarP(&ownIP, "own-ip", "o", "0.0.0.0", "local bind address")
	flag.IntVarP(&port, "port", "p", pd.DefaultPdPort, "local bind port")
	flag.StringVarP(&replyIP, "reply-ip", "r", "", "address to publish cyclic data to")
	flag.StringVarP(&targetIP, "target-ip", "t", "", "address to PULL the statistics element from")
	flag.Uint32Var(&comID, "com-id", 1000, "comId to publish on --reply-ip")
	flag.DurationVar(&cycle, "cycle", 100*time.Millisecond, "publication cycle time")
	flag.DurationVar(&timeout, "timeout", 300*time.Millisecond, "subscription timeout (unused: pdtool opens no subscription)")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	flag.Parse()

	log := newLogger(verbose)

	sess, err := pd.NewSession(pd.SessionConfig{
		Logger: log,
		BindIP: ownIP,
		Port:   port,
	})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	if _, err := sess.PublishStatistics(); err != nil {
		return fmt.Errorf("publish statistics element: %w", err)
	}

	if replyIP != "" {
		dst := net.ParseIP(replyIP)
		if dst == nil {
			return fmt.Errorf("invalid --reply-ip %q", replyIP)
		}
		e, err := sess.Publish(pd.Addr{ComID: comID, DstIP: dst}, cycle, 0, 0, nil, nil)
		if err != nil {
			return fmt.Errorf("publish comId %d: %w", comID, err)
		}
		if err := sess.Put(e, []byte("pdtool")); err != nil {
			return fmt.Errorf("put initial payload: %w", err)
		}
		log.Info("publishing", "comId", comID, "dst", dst.String(), "cycle", cycle)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sess.RunTransmit(ctx); err != nil {
			log.Error("transmit loop exited", "error", err)
		}
	}()
	go func() {
		if err := sess.RunTimeoutSupervisor(ctx); err != nil {
			log.Error("timeout supervisor exited", "error", err)
		}
	}()
	go func() {
		if err := sess.RunReceive(ctx); err != nil {
			log.Error("receive loop exited", "error", err)
		}
	}()

	if targetIP != "" {
		dst := net.ParseIP(targetIP)
		if dst == nil {
			return fmt.Errorf("invalid --target-ip %q", targetIP)
		}
		if err := sess.RequestPull(pd.StatisticsPullComID, dst, 0, pd.StatisticsPullComID); err != nil {
			log.Warn("pull request failed", "error", err)
		} else {
			log.Info("pull request sent", "target", dst.String())
		}
	}

	log.Info("pdtool running", "bind", ownIP)
	<-ctx.Done()
	log.Info("pdtool stopped")
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: level,
	}))
}
