// license-tool is the command line companion for managing the machine's
// license without starting the web surface: check status, activate,
// deactivate, print the hardware ID, or mint a key for offline issuance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"nexuscli/internal/authority"
	"nexuscli/internal/config"
	"nexuscli/internal/infrastructure"
	"nexuscli/internal/license"
	"nexuscli/internal/security"
)

func main() {
	key := flag.String("key", "", "license key (XXXX-XXXX-XXXX-XXXX)")
	email := flag.String("email", "", "customer email")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Quiet console output; the tool prints its own results. The initialized
	// logger becomes the process default used by the license packages.
	cfg.Logging.Level = "error"
	if _, err := infrastructure.InitializeLogger(cfg.Logging); err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
	}

	fingerprint := security.NewFingerprintManager()

	switch command {
	case "hardware-id":
		fmt.Println(fingerprint.CurrentFingerprint())
		return
	case "generate-key":
		if *email == "" {
			fmt.Fprintln(os.Stderr, "generate-key requires -email")
			os.Exit(2)
		}
		generated, err := license.GenerateKey(*email)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to generate key:", err)
			os.Exit(1)
		}
		fmt.Println(generated)
		return
	}

	licensePath, err := config.LicensePath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to resolve license path:", err)
		os.Exit(1)
	}

	store := license.NewStore(licensePath)
	client := authority.NewClient(cfg.License.AuthorityBaseURL)
	manager := license.NewManager(cfg.License, store, client, fingerprint)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch command {
	case "status":
		runStatus(ctx, manager)
	case "activate":
		if *key == "" {
			fmt.Fprintln(os.Stderr, "activate requires -key")
			os.Exit(2)
		}
		runActivate(ctx, manager, *key, *email)
	case "deactivate":
		if err := manager.Deactivate(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "deactivation failed:", err)
			os.Exit(1)
		}
		fmt.Println("license deactivated")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		os.Exit(2)
	}
}

func runStatus(ctx context.Context, manager *license.Manager) {
	verdict := manager.IsValid(ctx)
	fmt.Println(verdict.Message())

	info := manager.Info(ctx)
	if !info.Licensed {
		os.Exit(1)
	}

	fmt.Printf("  type:     %s\n", info.LicenseType)
	fmt.Printf("  customer: %s\n", info.CustomerEmail)
	fmt.Printf("  features: %v\n", info.Features)
	if info.Perpetual {
		fmt.Println("  expiry:   perpetual")
	} else {
		fmt.Printf("  expiry:   %s (%d days remaining)\n",
			info.ExpiryDate.Format("2006-01-02"), info.DaysRemaining)
	}
	if !verdict.Valid {
		os.Exit(1)
	}
}

func runActivate(ctx context.Context, manager *license.Manager, key, email string) {
	record, err := manager.Activate(ctx, key, email)
	if err != nil {
		fmt.Fprintln(os.Stderr, "activation failed:", err)
		os.Exit(1)
	}
	fmt.Printf("activated %s license for %s\n", record.LicenseType, record.CustomerEmail)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: license-tool [flags] <command>

Commands:
  status        show the current license and validation verdict
  activate      activate a license on this machine (-key, optional -email)
  deactivate    release this machine's activation and remove the local license
  hardware-id   print this machine's hardware fingerprint
  generate-key  mint a license key for offline issuance (-email)

Flags:
`)
	flag.PrintDefaults()
}
