// Command k2bench wires a K23SIClient end-to-end: it creates a
// collection, runs a configurable number of single-write transactions
// against it, and reports the client's counters.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chogori-io/k2go/client"
	"github.com/chogori-io/k2go/dto"
)

// benchConfig is the top-level configuration object of the bench binary:
// client.Config's options plus a handful of bench-specific knobs.
var benchConfig = new(struct {
	Client client.Config `group:"Client" namespace:"client" env-namespace:"K2BENCH_CLIENT"`

	Collection string `long:"collection" default:"k2bench" description:"name of the collection to create and write into"`
	NumTxns    int    `long:"num-txns" default:"1000" description:"number of single-write transactions to run"`
	KeyPrefix  string `long:"key-prefix" default:"k2bench/" description:"prefix prepended to each generated key"`

	Log struct {
		Level string `long:"level" default:"info" description:"logrus level: debug, info, warn, error"`
	} `group:"Logging" namespace:"log" env-namespace:"K2BENCH_LOG"`
})

func main() {
	parser := flags.NewParser(benchConfig, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	level, err := log.ParseLevel(benchConfig.Log.Level)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("k2bench failed")
	}
}

func run(ctx context.Context) error {
	c, err := client.New(benchConfig.Client, log.WithField("service", "k2bench"), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := c.GracefulStop(stopCtx); err != nil {
			log.WithError(err).Warn("error during graceful stop")
		}
	}()

	status, err := c.MakeCollection(ctx, benchConfig.Collection, nil)
	if err != nil {
		return err
	}
	if !status.Is2xxOK() {
		log.WithField("status", status).Warn("MakeCollection did not return OK; continuing, collection may already exist")
	}

	for i := 0; i < benchConfig.NumTxns && ctx.Err() == nil; i++ {
		if err := runOneTxn(ctx, c, i); err != nil {
			log.WithError(err).WithField("txn_index", i).Warn("transaction failed")
		}
	}

	counters := c.Counters()
	log.WithFields(log.Fields{
		"total_txns":      counters.TotalTxns,
		"successful_txns": counters.SuccessfulTxns,
		"abort_conflicts": counters.AbortConflicts,
		"abort_too_old":   counters.AbortTooOld,
		"read_ops":        counters.ReadOps,
		"write_ops":       counters.WriteOps,
		"heartbeats":      counters.Heartbeats,
	}).Info("k2bench finished")
	return nil
}

func runOneTxn(ctx context.Context, c *client.K23SIClient, index int) error {
	h, err := c.BeginTxn(ctx)
	if err != nil {
		return err
	}

	key := dto.Key(benchConfig.KeyPrefix + string(rune('a'+index%26)))
	if _, err := h.Write(ctx, benchConfig.Collection, key, []byte("v"), false); err != nil {
		return err
	}

	_, err = h.End(ctx, true)
	return err
}
