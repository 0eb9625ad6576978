package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"diary/internal/config"
	"diary/internal/gradebook"
	"diary/internal/logger"
	"diary/internal/schoolapi"
	"diary/internal/session"
)

var stderr *log.Logger

func main() {
	defer os.Exit(0)

	stderr = log.New(os.Stderr, "DIARY : ", log.LstdFlags)
	cfg := config.Load()

	school := schoolapi.New(schoolapi.Options{
		AuthURL:     cfg.AuthURL,
		GradesURL:   cfg.GradesURL,
		DirectorURL: cfg.DirectorURL,
		Timeout:     cfg.RequestTimeout,
		Demo:        cfg.DemoMode,
	})
	lg := logger.NewStd(os.Stderr, "DIARY : ", false)
	ctrl := session.NewController(session.NewMemoryStore(0), school, gradebook.NewLoader(school), nil, lg, session.Options{
		EchoCode: cfg.EchoCode,
		Timeout:  cfg.RequestTimeout,
	})

	// start CLI
	cli := commandLine{
		ctrl: ctrl,
		in:   bufio.NewReader(os.Stdin),
		out:  os.Stdout,
	}
	if err := cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			stderr.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
