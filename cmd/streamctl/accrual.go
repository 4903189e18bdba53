package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbd888/streamvault/internal/accrual"
	"github.com/mbd888/streamvault/internal/risk"
)

func newAccrualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accrual [state.json|-]",
		Short: "Compute claimable amounts for a stream state",
		Long: "Reads a stream state document (the body accepted by POST /api/streams/accrual) " +
			"and prints the summary with every tranche.",
		Args: cobra.MaximumNArgs(1),
		RunE: runAccrual,
	}
	cmd.Flags().String("at", "", "evaluate at this unix time instead of the document's timestamp; \"now\" uses the clock")
	return cmd
}

func runAccrual(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	data, err := readInput(cmd, name)
	if err != nil {
		return err
	}

	var req accrual.StateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse stream state: %w", err)
	}

	at, _ := cmd.Flags().GetString("at")
	switch at {
	case "":
	case "now":
		req.Timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	default:
		req.Timestamp = at
	}

	resp, err := req.Evaluate()
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

func newTypehashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "typehash",
		Short: "Print the risk payload type string and its keccak256 hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", risk.TypeString, risk.TypeHash.Hex())
			return err
		},
	}
}
