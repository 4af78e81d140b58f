package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nus-sys/neobft-artifact/internal/calibrate"
	"github.com/nus-sys/neobft-artifact/internal/cluster"
	"github.com/nus-sys/neobft-artifact/internal/config"
	"github.com/nus-sys/neobft-artifact/internal/remote"
	"github.com/nus-sys/neobft-artifact/internal/report"
	"github.com/nus-sys/neobft-artifact/internal/results"
	"github.com/nus-sys/neobft-artifact/internal/runner"
)

func main() {
	log.SetFormatter(&log.TextFormatter{TimestampFormat: "15:04:05.000"})

	if len(os.Args) < 2 {
		log.Fatal("usage: neoctl <calibrate|test|deploy> [flags]")
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	crypto := flags.String("crypto", "", "crypto variant passed to the role binaries")
	configPath := flags.String("config", "", "path to YAML config file")
	if err := flags.Parse(os.Args[2:]); err != nil {
		log.Fatal(err)
	}

	cfg := loadConfig(*configPath)

	switch command {
	case "calibrate":
		// errors surface here so runCalibrate's defers close the store and
		// publisher before the process exits
		if err := runCalibrate(cfg, requireCrypto(*crypto)); err != nil {
			log.Fatal(err)
		}
	case "test":
		runTest(cfg, requireCrypto(*crypto))
	case "deploy":
		runDeploy(cfg)
	default:
		log.Fatalf("unknown command %q", command)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.ParseConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func requireCrypto(crypto string) string {
	if crypto == "" {
		log.Fatal("-crypto is required")
	}
	return crypto
}

func loadBook(cfg *config.Config) *cluster.Book {
	book, err := cluster.ParseAddressFile(cfg.AddressFile)
	if err != nil {
		log.Fatal(err)
	}
	return book
}

func runCalibrate(cfg *config.Config, crypto string) error {
	book := loadBook(cfg)

	store, err := results.Open(cfg.ResultsPath)
	if err != nil {
		return err
	}
	defer store.Close()

	recorders := []calibrate.Recorder{store}
	if cfg.MQTTBroker != "" {
		publisher, err := report.NewPublisher(cfg.MQTTBroker, "neoctl")
		if err != nil {
			return err
		}
		defer publisher.Close()
		recorders = append(recorders, publisher)
	}

	calibrator := calibrate.New(runner.New(remote.SSHController{}, cfg), cfg.Calibration, recorders...)
	return calibrator.Sweep(book, crypto)
}

// runTest runs a single smallest-shape round as a smoke check of the
// cluster: one replica, one client, f=0.
func runTest(cfg *config.Config, crypto string) {
	book := loadBook(cfg)

	result, err := runner.New(remote.SSHController{}, cfg).Run(book, runner.Params{F: 0, ClientCount: 1, Crypto: crypto})
	if err != nil {
		log.Fatal(err)
	}
	if result.Failed {
		log.Fatal("test round failed")
	}
	fmt.Printf("Throughput %g op/sec %s\n", result.Throughput, result.Latency)
}

// runDeploy copies artifact/<prefix>-<role> to every host in the address
// file concurrently.
func runDeploy(cfg *config.Config) {
	book := loadBook(cfg)
	ctl := remote.SSHController{}

	entries := book.Entries()
	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		i, entry := i, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := cfg.BinaryPrefix + "-" + string(entry.Role)
			errs[i] = ctl.CopyFile(entry.Public, "artifact/"+name, name)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		log.Fatal(err)
	}
	log.Infof("deployed %s binaries to %d hosts", cfg.BinaryPrefix, len(entries))
}
