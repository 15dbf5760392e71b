package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"justintune/utils"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

func main() {
	err := utils.CreateFolder("storage")
	if err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed to create storage dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve', 'index', 'identify' or 'erase' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)
	case "index":
		indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
		dir := indexCmd.String("dir", utils.GetEnv("SCORES_DIR", "scores"), "Directory of score MIDI files")
		meta := indexCmd.String("meta", "", "Optional CSV mapping file names to composer and track")
		indexCmd.Parse(os.Args[2:])
		buildIndex(*dir, *meta)
	case "identify":
		identifyCmd := flag.NewFlagSet("identify", flag.ExitOnError)
		file := identifyCmd.String("file", "", "MIDI file to identify")
		identifyCmd.Parse(os.Args[2:])
		if *file == "" {
			fmt.Println("identify requires -file")
			os.Exit(1)
		}
		identifyFile(*file)
	case "erase":
		erase()
	default:
		fmt.Println("Expected 'serve', 'index', 'identify' or 'erase' subcommand")
		os.Exit(1)
	}
}
