// Package main watches a directory and prints one line per change.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/changefeed/internal/di"
	"github.com/listenupapp/changefeed/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	injector := di.NewContainer(args)

	feed, err := di.Bootstrap(injector)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to start changefeed: %v\n", err)
		return 1
	}

	log := do.MustInvoke[*logger.Logger](injector)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	code := 0
loop:
	for {
		select {
		case rec, ok := <-feed.Records():
			if !ok {
				<-feed.Done()
				if feed.Err() != nil {
					log.WithError(feed.Err()).Error("Feed failed")
					code = 1
				}
				break loop
			}
			fmt.Println(rec.String())
		case sig := <-quit:
			log.Info("Shutting down", "signal", sig.String())
			break loop
		}
	}

	if err := injector.Shutdown(); err != nil {
		log.WithError(err).Error("Shutdown error")
	}

	return code
}
