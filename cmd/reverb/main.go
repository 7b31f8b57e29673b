package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/media-luna/reverb/configs"
	"github.com/media-luna/reverb/internal/reverb"
	"github.com/media-luna/reverb/utils/logger"
)

func main() {
	// Parse command line arguments
	crawlCmd := flag.Bool("crawl", false, "Fingerprint every supported audio file under the target directory")
	sessionCmd := flag.Bool("session", false, "Run an unattended crawl session with storage-corruption recovery")
	recognizeFile := flag.String("recognize", "", "Path to the audio file to recognize")
	listCmd := flag.Bool("list", false, "List all fingerprinted audios in the index")
	countCmd := flag.Bool("count", false, "Print the number of fingerprinted audios and stored hashes")
	deleteCmd := flag.Int("delete", -1, "Delete an audio by its ID")
	emptyCmd := flag.Bool("empty", false, "Drop and recreate the whole index")
	configPath := flag.String("config", "", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	if *configPath == "" {
		dir, _ := os.Getwd()
		*configPath = filepath.Join(dir, "configs", "config.yaml")
	}
	config, err := configs.LoadConfig(*configPath)
	if err != nil {
		logger.Errorf("failed to load configuration: %v", err)
		os.Exit(1)
	}

	app, err := reverb.NewReverb(*config)
	if err != nil {
		logger.Errorf("error initializing reverb: %v", err)
		os.Exit(1)
	}
	defer app.Close()

	// Ingestion is cooperative: SIGINT stops dispatching new files and
	// lets in-flight workers finish.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *crawlCmd:
		if err := app.Crawl(ctx); err != nil {
			logger.Errorf("error crawling %s: %v", config.Crawler.TargetDir, err)
			os.Exit(1)
		}

	case *sessionCmd:
		if err := app.RunSession(ctx); err != nil {
			logger.Errorf("error running crawl session: %v", err)
			os.Exit(1)
		}

	case *recognizeFile != "":
		recognition, err := app.Recognize(*recognizeFile)
		if err != nil {
			logger.Errorf("error recognizing audio file: %v", err)
			os.Exit(1)
		}
		out, err := json.MarshalIndent(recognition, "", "  ")
		if err != nil {
			logger.Errorf("error encoding recognition result: %v", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

	case *listCmd:
		audios, err := app.List()
		if err != nil {
			logger.Errorf("error listing audios: %v", err)
			os.Exit(1)
		}
		if len(audios) == 0 {
			logger.Info("no audios found in the index")
			return
		}
		for _, audio := range audios {
			fmt.Printf("ID: %d | Name: %s | Hashes: %d | SHA1: %s | Created: %s\n",
				audio.ID, audio.Name, audio.TotalHashes, audio.SHA1, audio.DateCreated)
		}

	case *countCmd:
		numAudios, err := app.Count()
		if err != nil {
			logger.Errorf("error counting audios: %v", err)
			os.Exit(1)
		}
		numHashes, err := app.CountFingerprints()
		if err != nil {
			logger.Errorf("error counting fingerprints: %v", err)
			os.Exit(1)
		}
		fmt.Printf("%d audios, %d fingerprints\n", numAudios, numHashes)

	case *deleteCmd >= 0:
		if err := app.Delete(*deleteCmd); err != nil {
			logger.Errorf("error deleting audio: %v", err)
			os.Exit(1)
		}

	case *emptyCmd:
		if err := app.Empty(); err != nil {
			logger.Errorf("error emptying index: %v", err)
			os.Exit(1)
		}

	default:
		logger.Error(fmt.Errorf("please provide one of -crawl, -session, -recognize, -list, -count, -delete or -empty"))
		flag.Usage()
		os.Exit(1)
	}
}
