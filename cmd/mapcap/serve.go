package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapcap-ipo/internal/config"
	"mapcap-ipo/internal/dashboard"
	"mapcap-ipo/internal/wallet"
	"mapcap-ipo/internal/wallet/stub"
)

func newServeCmd() *cobra.Command {
	var (
		listenAddr string
		walletMode string
		stubUser   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard page, its websocket sessions and the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("wallet") {
				cfg.WalletMode = strings.ToLower(walletMode)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, stubUser)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides "+config.EnvListenAddr+")")
	cmd.Flags().StringVar(&walletMode, "wallet", "", "wallet mode: relay or stub (overrides "+config.EnvWalletMode+")")
	cmd.Flags().StringVar(&stubUser, "stub-user", "pioneer", "username the stub wallet authenticates as")
	return cmd
}

func runServe(ctx context.Context, stubUser string) error {
	st, cleanup, err := createStores(ctx, cfg.PostgresDSN, cfg.ClickhouseDSN, cfg.UseMemory(), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := dashboard.Options{
		Backend:        newClient(logger),
		Identities:     st.identities,
		Events:         st.events,
		History:        st.history,
		PiSandbox:      cfg.PiSandbox,
		PollInterval:   cfg.PollInterval,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	}
	if cfg.WalletMode == config.WalletModeStub {
		user := wallet.User{UID: "stub-" + stubUser, Username: stubUser}
		opts.StubWallet = func() wallet.SDK {
			return stub.New(stub.WithUser(user))
		}
		logger.Warn("stub wallet enabled, payments are simulated", zap.String("user", stubUser))
	}

	srv, err := dashboard.New(opts)
	if err != nil {
		return err
	}

	logger.Info("starting dashboard",
		zap.String("addr", cfg.ListenAddr),
		zap.String("api", cfg.APIURL),
		zap.String("wallet", cfg.WalletMode),
		zap.Bool("memory", cfg.UseMemory()),
	)
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		logger.Error("dashboard stopped", zap.Error(err))
		return err
	}
	logger.Info("dashboard stopped")
	return nil
}
