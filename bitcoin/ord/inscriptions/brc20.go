// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package inscriptions

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
)

// BRC20ContentType defines content type of brc-20 operations.
const BRC20ContentType = "text/plain;charset=utf-8"

// BRC20Transfer defines brc-20 transfer operation payload, field order is kept on encoding.
type BRC20Transfer struct {
	Protocol  string `json:"p"`
	Operation string `json:"op"`
	Tick      string `json:"tick"`
	Amount    string `json:"amt"`
}

// NewBRC20Transfer returns text inscription of brc-20 transfer operation.
func NewBRC20Transfer(tick, amount string) (*Inscription, error) {
	if tick == "" || strings.TrimSpace(amount) == "" {
		return nil, errors.New("brc-20 tick and amount are required")
	}

	body, err := sonic.Marshal(BRC20Transfer{
		Protocol:  "brc-20",
		Operation: "transfer",
		Tick:      tick,
		Amount:    amount,
	})
	if err != nil {
		return nil, err
	}

	return &Inscription{ContentType: BRC20ContentType, Body: body}, nil
}

// NewAlkanesEnvelope returns BIN envelope carrying contract payload.
func NewAlkanesEnvelope(payload []byte) (*Inscription, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty contract payload")
	}

	return &Inscription{Protocol: ProtocolAlkanes, Body: payload}, nil
}
