package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mbd888/streamvault/internal/risk"
	"github.com/mbd888/streamvault/internal/riskstore"
)

// errSignerMismatch is returned when --signer is set and recovery yields a
// different address.
var errSignerMismatch = errors.New("streamctl: signature was not produced by the expected signer")

// signedDocument matches both a stored risk record and the evaluate response.
type signedDocument struct {
	Payload   *riskstore.SignedPayload `json:"payload"`
	Signature string                   `json:"signature"`
}

type verifyResult struct {
	Subject   string `json:"subject"`
	Digest    string `json:"digest"`
	Recovered string `json:"recovered"`
	Expired   bool   `json:"expired"`
	ExpiresAt int64  `json:"expiresAt"`
	Valid     *bool  `json:"valid,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [record.json|-]",
		Short: "Recover the signer of a signed risk payload",
		Long: "Reads a JSON document with \"payload\" and \"signature\" fields, rebuilds the " +
			"structured digest, and recovers the signing address. With --signer the command " +
			"fails unless the recovered address matches.",
		Args: cobra.MaximumNArgs(1),
		RunE: runVerify,
	}
	cmd.Flags().String("signer", "", "expected signer address")
	cmd.Flags().Int64("now", 0, "unix time used for the expiry check (default: current time)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	data, err := readInput(cmd, name)
	if err != nil {
		return err
	}

	var doc signedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if doc.Payload == nil || doc.Signature == "" {
		return errors.New("document must contain payload and signature")
	}

	p, err := risk.PayloadFromStored(*doc.Payload)
	if err != nil {
		return err
	}
	digest, err := p.Digest()
	if err != nil {
		return err
	}
	recovered, err := risk.RecoverSigner(p, doc.Signature)
	if err != nil {
		return err
	}

	now, _ := cmd.Flags().GetInt64("now")
	if now == 0 {
		now = time.Now().Unix()
	}
	res := verifyResult{
		Subject:   p.Subject,
		Digest:    digest.Hex(),
		Recovered: recovered.Hex(),
		Expired:   p.Expired(now),
		ExpiresAt: p.Expiry,
	}

	expected, _ := cmd.Flags().GetString("signer")
	if expected != "" {
		if !common.IsHexAddress(expected) {
			return fmt.Errorf("invalid --signer address %q", expected)
		}
		valid := common.HexToAddress(expected) == recovered
		res.Valid = &valid
	}

	if err := printJSON(cmd, res); err != nil {
		return err
	}
	if res.Valid != nil && !*res.Valid {
		return errSignerMismatch
	}
	return nil
}
