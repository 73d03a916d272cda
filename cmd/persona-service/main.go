package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mycelian/mycelian-persona/internal/app"
)

func main() {
	if err := app.RunService(); err != nil {
		log.Error().Err(err).Msg("persona-service exited with error")
		os.Exit(1)
	}
}
