// storyctl é o cliente de linha de comando da plataforma: lê histórias e pools,
// estima cotações, acompanha o canal ao vivo e envia apostas.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/apiclient"
	"github.com/radieske/story-bet-platform/internal/client/auth"
	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/client/reads"
	"github.com/radieske/story-bet-platform/internal/shared/config"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
)

// app agrupa as dependências compartilhadas pelos comandos
type app struct {
	cfg     config.Config
	verbose bool

	log     *zap.Logger
	api     *apiclient.Client
	cache   *rcache.Cache
	reads   *reads.Client
	session *auth.Session
}

func (a *app) init() error {
	a.log = zap.NewNop()
	if a.verbose {
		l, err := logger.New(a.cfg.ServiceName, a.cfg.Env)
		if err != nil {
			return fmt.Errorf("logger init: %w", err)
		}
		a.log = l
	}
	a.api = apiclient.New(apiclient.Options{BaseURL: a.cfg.APIURL, Logger: a.log})
	a.cache = rcache.New(rcache.Options{RefreshInterval: a.cfg.CacheRefreshInterval, Logger: a.log})
	a.reads = reads.New(a.api, a.cache, a.log)
	a.session = auth.NewSession(a.api, a.cache, a.log)
	return nil
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "storyctl",
		Short:         "Interactive fiction betting client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.APIURL, "api", a.cfg.APIURL, "story API base URL")
	root.PersistentFlags().StringVar(&a.cfg.LiveURL, "live", a.cfg.LiveURL, "live channel base URL")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		newQuoteCmd(),
		newStoriesCmd(a),
		newPoolsCmd(a),
		newOutcomesCmd(a),
		newLeaderboardCmd(a),
		newWatchCmd(a),
		newBetCmd(a),
		newMeCmd(a),
	)
	return root
}

// syncWriter serializa a saída de handlers que rodam em goroutines diferentes
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func main() {
	a := &app{cfg: config.LoadService("storyctl")}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func shortTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
