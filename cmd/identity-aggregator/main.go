// Command identity-aggregator projects identity events into the users read model.
package main

import (
	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/config"
	"github.com/ivorscott/saas-core/health/echohealth"
	"github.com/ivorscott/saas-core/identity"
	"github.com/ivorscott/saas-core/internal/app"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/prometheus/client_golang/prometheus"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

func main() {
	cfg, err := config.Load()
	checkErr(err, "loading config")

	store, err := app.OpenLogStore(cfg.LogStore, identity.Codec())
	checkErr(err, "opening log store")

	defer store.Close()

	rm, err := app.OpenReadModel(cfg)
	checkErr(err, "opening read model")

	reg := prometheus.NewRegistry()

	metrics, err := msgstore.NewMetrics(reg)
	checkErr(err, "registering metrics")

	aggregator, err := identity.NewAggregator(store, rm, app.SubscriptionOpts(cfg.Sub, metrics)...)
	checkErr(err, "creating aggregator")

	ctx, cancel := app.SignalContext()
	defer cancel()

	go func() {
		err := app.Serve(ctx, echohealth.New(reg, aggregator.Subscription()), cfg.HealthAddr)
		if err != nil {
			log.WithError(err).Error("health server")
		}
	}()

	log.Info("aggregator started", "subscriber", identity.AggregatorID)

	err = msgstore.NewProjector(aggregator).Run(ctx)
	if err != nil {
		log.WithError(err).Error("aggregator stopped")

		return
	}

	log.Info("aggregator stopped")
}

func checkErr(err error, msg string) {
	if err != nil {
		log.WithError(err).Fatal(msg)
	}
}
