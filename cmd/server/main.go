package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	_ "github.com/eleven-am/parakeet-wyoming/docs"
	"github.com/eleven-am/parakeet-wyoming/internal/bootstrap"
)

// @title Parakeet Wyoming API
// @version 1.1.0
// @description Management API for the Parakeet wyoming transcription service
// @BasePath /

func main() {
	cfg, err := bootstrap.LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.ShowVersion {
		fmt.Println(bootstrap.Version)
		return
	}

	bootstrap.Run(cfg)
}
