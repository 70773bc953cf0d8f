package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/tinyolap/kv/config"
	"github.com/pingcap-incubator/tinyolap/kv/meta"
	"github.com/pingcap-incubator/tinyolap/kv/server"
	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap-incubator/tinyolap/kv/transaction"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "config file path")
	statusAddr = flag.String("status-addr", "", "status address")
	dbPath     = flag.String("path", "", "directory path of checkpoints")
)

var (
	gitHash = "None"
)

func main() {
	flag.Parse()
	conf := config.NewDefaultConfig()
	if *configPath != "" {
		if err := conf.LoadFile(*configPath); err != nil {
			log.Fatal("load config failed", zap.Error(err))
		}
	}
	if *statusAddr != "" {
		conf.StatusAddr = *statusAddr
	}
	if *dbPath != "" {
		conf.DBPath = *dbPath
	}
	if err := conf.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	if err := conf.SetupLogger(); err == nil {
		log.ReplaceGlobals(conf.GetZapLogger(), conf.GetZapLogProperties())
	} else {
		log.Fatal("initialize logger error", zap.Error(err))
	}
	defer log.Sync()

	log.Info("welcome to tinyolap", zap.String("git-hash", gitHash))
	log.Info("config", zap.Reflect("config", conf))

	engine, err := openEngine(conf)
	if err != nil {
		log.Fatal("open meta engine failed", zap.Error(err))
	}
	store := meta.NewStore(engine)

	tablets := tablet.NewManager()
	if _, err := meta.RestoreTablets(store, tablets); err != nil {
		log.Fatal("restore tablets failed", zap.Error(err))
	}
	txns := transaction.NewTxnManager(tablets)

	var cp *meta.Checkpointer
	if conf.Checkpoint {
		cp = meta.NewCheckpointer(store, tablets)
		cp.Start()
		txns.OnPublished = cp.Notify
	}

	svr := server.NewServer(tablets, txns)
	if cp != nil {
		svr.OnTabletsChanged = func(tabletIDs []uint64) {
			cp.Notify(0, tabletIDs)
		}
	}
	httpServer := &http.Server{
		Addr:    conf.StatusAddr,
		Handler: newHandler(svr.Handler()),
	}
	go func() {
		log.Info("listening on", zap.String("status-addr", conf.StatusAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sig := handleSignal(cancel)
	if cp != nil {
		go runCheckpointAll(ctx, cp, conf.CheckpointAllInterval.Duration)
	}

	<-ctx.Done()
	log.Info("got signal to exit", zap.String("signal", (<-sig).String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown http server failed", zap.Error(err))
	}
	if cp != nil {
		cp.NotifyAll()
		cp.Stop()
	}
	if err := store.Close(); err != nil {
		log.Error("close meta store failed", zap.Error(err))
	}
	log.Info("server stopped")
}

// newHandler serves pprof from the default mux next to the API routes.
func newHandler(api http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/", api)
	return mux
}

func openEngine(conf *config.Config) (meta.Engine, error) {
	if conf.DBPath == "" {
		log.Warn("db-path is empty, checkpoints are kept in memory")
		return meta.NewMemEngine(), nil
	}
	return meta.OpenBadgerEngine(conf.DBPath)
}

func runCheckpointAll(ctx context.Context, cp *meta.Checkpointer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cp.NotifyAll()
		case <-ctx.Done():
			return
		}
	}
}

func handleSignal(cancel context.CancelFunc) <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	sig := make(chan os.Signal, 1)
	go func() {
		s := <-sigCh
		sig <- s
		cancel()
	}()
	return sig
}
