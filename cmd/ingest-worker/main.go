package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mycelian/mycelian-persona/internal/app"
)

func main() {
	if err := app.RunWorker(); err != nil {
		log.Error().Err(err).Msg("ingest-worker exited with error")
		os.Exit(1)
	}
}
