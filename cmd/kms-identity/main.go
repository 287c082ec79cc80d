package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/kms-identity/cmd/flags"
	"github.com/ruteri/kms-identity/common"
	"github.com/ruteri/kms-identity/config"
	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/httpserver"
	"github.com/ruteri/kms-identity/interfaces"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "kms-identity",
		Usage:   "Ledger identities backed by remote key-management services",
		Version: common.Version,
		Flags:   flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "principal",
				Usage:  "Print the sender principal of an identity",
				Flags:  []cli.Flag{flags.IdentityFlag},
				Action: principalCmd,
			},
			{
				Name:   "pubkey",
				Usage:  "Print the hex encoded public key of an identity",
				Flags:  []cli.Flag{flags.IdentityFlag},
				Action: pubkeyCmd,
			},
			{
				Name:      "sign",
				Usage:     "Sign request content read as JSON from a file or stdin",
				ArgsUsage: "[content.json]",
				Flags: []cli.Flag{
					flags.IdentityFlag,
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 30 * time.Second,
						Usage: "timeout for the key service round trip",
					},
				},
				Action: signCmd,
			},
			{
				Name:   "serve",
				Usage:  "Serve the configured identities over HTTP",
				Flags:  flags.ServerFlags,
				Action: serveCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadIdentity builds only the identity named by --identity.
func loadIdentity(cCtx *cli.Context) (*config.NamedIdentity, error) {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		return nil, err
	}

	name := cCtx.String(flags.IdentityFlag.Name)
	idCfg, ok := cfg.Identity(name)
	if !ok {
		return nil, fmt.Errorf("identity %q is not configured", name)
	}

	var svc interfaces.KeyService
	if idCfg.Type == config.IdentityKMS {
		if svc, err = cfg.KeyService(logger); err != nil {
			return nil, err
		}
	}
	return config.BuildIdentity(cCtx.Context, idCfg, svc, logger)
}

func principalCmd(cCtx *cli.Context) error {
	id, err := loadIdentity(cCtx)
	if err != nil {
		return err
	}
	sender, err := id.Sender()
	if err != nil {
		return err
	}
	fmt.Println(sender.String())
	return nil
}

func pubkeyCmd(cCtx *cli.Context) error {
	id, err := loadIdentity(cCtx)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(id.PublicKey()))
	return nil
}

func signCmd(cCtx *cli.Context) error {
	id, err := loadIdentity(cCtx)
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if path := cCtx.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var doc envelope.ContentJSON
	if err := json.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("invalid request content: %w", err)
	}

	sender, err := id.Sender()
	if err != nil {
		return err
	}
	if doc.IngressExpiry == 0 {
		doc.IngressExpiry = uint64(time.Now().Add(5 * time.Minute).UnixNano())
	}
	if doc.Nonce == nil && doc.RequestType != envelope.RequestTypeReadState {
		nonce := uuid.New()
		doc.Nonce = nonce[:]
	}

	content, err := doc.Content(sender)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration("timeout"))
	defer cancel()

	sig, err := id.Sign(ctx, content)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(httpserver.SignResponse{
		RequestID: content.RequestID().String(),
		Sender:    sender.String(),
		PublicKey: sig.PublicKey,
		Signature: sig.Signature,
	})
}

func serveCmd(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		logger.Error("Failed to load config", "err", err)
		return err
	}

	identities, err := cfg.BuildIdentities(cCtx.Context, logger)
	if err != nil {
		logger.Error("Failed to build identities", "err", err)
		return err
	}
	for _, id := range identities {
		sender, err := id.Sender()
		if err != nil {
			logger.Error("Failed to derive principal", "identity", id.Name, "err", err)
			return err
		}
		logger.Info("Loaded identity", "name", id.Name, "key_id", id.KeyID, "principal", sender.String())
	}

	handler, err := httpserver.NewHandler(identities, logger)
	if err != nil {
		return err
	}

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	server.RunInBackground()

	<-exit
	logger.Info("Shutting down")
	server.Shutdown()
	return nil
}
