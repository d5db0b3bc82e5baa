// Command pcombdemo drives a small PWFcomb-backed stack under concurrent
// load and serves its status over HTTP, the way the reference demo
// server wires viper configuration, logrus logging, and a gin router
// together.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/synchlab/pcomb/adapters/stack"
	"github.com/synchlab/pcomb/engine"
	"github.com/synchlab/pcomb/httpstatus"
)

func main() {
	cfg := initConfig()
	log := initLogger(cfg)

	nthreads := cfg.GetInt("engine.threads")
	opsPerThread := cfg.GetInt("engine.ops_per_thread")

	s := stack.New(nthreads, nil, cfg.GetBool("engine.disable_elimination"))
	eng, err := engine.NewPWFComb(engine.Config{
		NThreads:           nthreads,
		DisableFlush:       true,
		DisableElimination: cfg.GetBool("engine.disable_elimination"),
		EngineID:           "pcombdemo-stack",
	}, s.NewState(), nil)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	eng.SetFinalPersist(s.FinalPersist())
	eng.SetAfterPersist(s.AfterPersist())

	statusSrv := httpstatus.New(httpstatus.Config{
		Addr: fmt.Sprintf(":%d", cfg.GetInt("server.port")),
	}, log, eng)

	go func() {
		if err := statusSrv.Start(); err != nil {
			log.Errorf("status server stopped: %v", err)
		}
	}()

	runWorkload(log, eng, s, nthreads, opsPerThread)

	log.Infof("workload complete, final seq=%d", eng.Seq())

	waitForShutdown(log, statusSrv)
}

func runWorkload(log *logrus.Logger, eng *engine.PWFComb[stack.StackState], s *stack.Stack, nthreads, opsPerThread int) {
	var wg sync.WaitGroup
	for pid := 0; pid < nthreads; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			tl, err := eng.ThreadInit(pid)
			if err != nil {
				log.Errorf("thread %d init failed: %v", pid, err)
				return
			}
			r := rand.New(rand.NewSource(int64(pid) + 1))
			for i := 0; i < opsPerThread; i++ {
				arg := int64(pid*opsPerThread + i)
				if r.Intn(3) == 0 {
					arg = stack.PopOp
				}
				if _, err := eng.ApplyOp(context.Background(), tl, s.Func(), arg); err != nil {
					log.Errorf("thread %d op %d failed: %v", pid, i, err)
				}
			}
		}(pid)
	}
	wg.Wait()
}

func initConfig() *viper.Viper {
	cfg := viper.New()

	cfg.SetDefault("server.port", 8099)
	cfg.SetDefault("log.level", "info")
	cfg.SetDefault("engine.threads", 4)
	cfg.SetDefault("engine.ops_per_thread", 1000)
	cfg.SetDefault("engine.disable_elimination", false)

	cfg.SetConfigName("pcombdemo")
	cfg.SetConfigType("yaml")
	cfg.AddConfigPath(".")
	cfg.AddConfigPath("./config")
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "no config file found, using defaults: %v\n", err)
	}
	return cfg
}

func initLogger(cfg *viper.Viper) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.GetString("log.level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	return log
}

func waitForShutdown(log *logrus.Logger, statusSrv *httpstatus.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down status server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := statusSrv.Shutdown(ctx); err != nil {
		log.Errorf("status server forced shutdown: %v", err)
	}
	log.Info("shutdown complete")
}
