package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/samber/do/v2"
	"github.com/vreid/enigma/internal/pkg/common"
	"github.com/vreid/enigma/internal/pkg/entry"
	"github.com/vreid/enigma/internal/pkg/event"
	"github.com/vreid/enigma/internal/pkg/feed"
	"github.com/vreid/enigma/internal/pkg/guess"
	"github.com/vreid/enigma/internal/pkg/payout"
	"github.com/vreid/enigma/internal/pkg/registry"
	"github.com/vreid/enigma/internal/pkg/token"

	"github.com/urfave/cli/v3"
)

type EnigmaService struct {
	EchoService     *common.EchoService     `do:""`
	DatabaseService *common.DatabaseService `do:""`

	TokenService    *token.TokenService       `do:""`
	RegistryService *registry.RegistryService `do:""`
	EntryService    *entry.EntryService       `do:""`
	GuessService    *guess.GuessService       `do:""`
	PayoutService   *payout.PayoutService     `do:""`
	FeedService     *feed.FeedService         `do:""`
}

func runServer(_ context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "operator-key", cmd.String("operator-key"))

	do.ProvideNamedValue(i, "entry-fee", cmd.Int64("entry-fee"))
	do.ProvideNamedValue(i, "retry-cost", cmd.Int64("retry-cost"))
	do.ProvideNamedValue(i, "max-retries", cmd.Int64("max-retries"))
	do.ProvideNamedValue(i, "reveal-delay-minutes", cmd.Int64("reveal-delay-minutes"))

	eventChan := make(chan event.Event, 1000)
	var eventSource <-chan event.Event = eventChan
	var eventSink chan<- event.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.Provide(i, common.NewEchoService)
	do.Provide(i, common.NewDatabaseService)

	do.Provide(i, token.NewTokenService)
	do.Provide(i, registry.NewRegistryService)
	do.Provide(i, entry.NewEntryService)
	do.Provide(i, guess.NewGuessService)
	do.Provide(i, payout.NewPayoutService)
	do.Provide(i, feed.NewFeedService)

	do.Provide(i, do.InvokeStruct[EnigmaService])

	enigmaService, err := do.Invoke[EnigmaService](i)
	if err != nil {
		return fmt.Errorf("failed to create enigma service: %w", err)
	}

	enigmaService.FeedService.Start()

	//nolint:wrapcheck
	return enigmaService.EchoService.Start()
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "enigma",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("ENIGMA_PORT"),
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Value:   "./enigma/data",
						Sources: cli.EnvVars("ENIGMA_DATA_DIR"),
					},
					&cli.StringFlag{
						Name:    "operator-key",
						Value:   "",
						Sources: cli.EnvVars("ENIGMA_OPERATOR_KEY"),
					},
					&cli.Int64Flag{
						Name:    "entry-fee",
						Value:   1,
						Sources: cli.EnvVars("ENIGMA_ENTRY_FEE"),
					},
					&cli.Int64Flag{
						Name:    "retry-cost",
						Value:   1,
						Sources: cli.EnvVars("ENIGMA_RETRY_COST"),
					},
					&cli.Int64Flag{
						Name:    "max-retries",
						Value:   3, //nolint:mnd
						Sources: cli.EnvVars("ENIGMA_MAX_RETRIES"),
					},
					&cli.Int64Flag{
						Name:    "reveal-delay-minutes",
						Value:   60, //nolint:mnd
						Sources: cli.EnvVars("ENIGMA_REVEAL_DELAY_MINUTES"),
					},
				},
				Action: runServer,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
