// Command identity-component turns identity commands into user events.
//
// With the stan transport commands are consumed from the identity.command
// channel by a durable queue subscription. Otherwise the component
// subscribes to the identity.command category of the log store.
package main

import (
	"fmt"
	"math/rand"

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

	tr, err := app.OpenTransport(cfg.Transport, fmt.Sprintf("com-identity-%d", rand.Int()), store)
	checkErr(err, "opening transport")

	defer tr.Close()

	reg := prometheus.NewRegistry()

	metrics, err := msgstore.NewMetrics(reg)
	checkErr(err, "registering metrics")

	component := identity.NewComponent(
		store,
		msgstore.NewPublisher(tr, store.Codec(), msgstore.WithPublishTimeout(cfg.Transport.PublishTimeout)),
	)

	ctx, cancel := app.SignalContext()
	defer cancel()

	var checkers []echohealth.Checker

	projector := msgstore.NewProjector()

	if tr.Stan != nil {
		listen, err := component.Listen()
		checkErr(err, "creating listener")

		err = tr.Stan.Listen(msgstore.CommandStream(identity.Category), cfg.Transport.QueueGroup, listen)
		checkErr(err, "listening for commands")
	} else {
		sub, err := component.Subscribe(store, app.SubscriptionOpts(cfg.Sub, metrics)...)
		checkErr(err, "subscribing component")

		projector.Add(sub)
		checkers = append(checkers, sub)
	}

	go func() {
		err := app.Serve(ctx, echohealth.New(reg, checkers...), cfg.HealthAddr)
		if err != nil {
			log.WithError(err).Error("health server")
		}
	}()

	log.Info("component started", "transport", cfg.Transport.Kind)

	err = projector.Run(ctx)
	if err != nil {
		log.WithError(err).Error("component stopped")

		return
	}

	<-ctx.Done()

	log.Info("component stopped")
}

func checkErr(err error, msg string) {
	if err != nil {
		log.WithError(err).Fatal(msg)
	}
}

