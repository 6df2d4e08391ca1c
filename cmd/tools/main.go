package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := NewRootCommand().Execute(); err != nil {
		zap.S().Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
