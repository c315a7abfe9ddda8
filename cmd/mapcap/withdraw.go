package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/mapcap"
	"mapcap-ipo/internal/view"
)

// withdrawer sends withdrawal requests to the backend.
type withdrawer interface {
	RequestWithdraw(ctx context.Context, req domain.WithdrawalRequest) (mapcap.WithdrawAck, error)
}

func newWithdrawCmd() *cobra.Command {
	var (
		username   string
		percentage string
	)

	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Request a withdrawal of part of a Pioneer's investment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithdraw(cmd.Context(), cmd.OutOrStdout(), newClient(logger), username, percentage)
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Pi username")
	cmd.Flags().StringVarP(&percentage, "percentage", "p", "", "share of the investment to withdraw, in (0, 100]")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("percentage")
	return cmd
}

// runWithdraw validates locally; an invalid request never reaches the backend.
func runWithdraw(ctx context.Context, w io.Writer, backend withdrawer, username, percentage string) error {
	pct, err := decimal.NewFromString(strings.TrimSpace(percentage))
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", domain.ErrInvalidPercentage, percentage)
	}

	req, err := domain.NewWithdrawalRequest(strings.TrimSpace(username), pct)
	if err != nil {
		return err
	}

	ack, err := backend.RequestWithdraw(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, view.WithdrawalNotice(req.Username, req.Percentage, nil).Text)
	if ack.Message != "" {
		fmt.Fprintln(w, ack.Message)
	}
	return nil
}
