package main

import (
	"os"

	"github.com/qetesh/bratwurstpower/cmd"
	"github.com/qetesh/bratwurstpower/infra/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.New("main").Errorf("%v", err)
		os.Exit(1)
	}
}
