package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"honestledger/internal/config"
)

func TestNewLoggerWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "honest.log")
	logger, err := newLogger("info", path)
	if err != nil {
		t.Fatalf("newLogger error: %v", err)
	}
	logger.Info("ledger ready")
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "ledger ready") {
		t.Fatalf("log file missing entry: %s", data)
	}
	if strings.Contains(string(data), "hidden at info level") {
		t.Fatalf("debug entry leaked into log file")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("loud", ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestParseAccounts(t *testing.T) {
	in := config.Accounts{
		Pegged:      config.SystemAddress("pegged").Hex(),
		Vault:       config.SystemAddress("vault").Hex(),
		Manager:     config.SystemAddress("manager").Hex(),
		Savings:     config.SystemAddress("savings").Hex(),
		Fee:         config.SystemAddress("fee").Hex(),
		Integration: config.SystemAddress("integration").Hex(),
	}
	out, err := parseAccounts(in)
	if err != nil {
		t.Fatalf("parseAccounts error: %v", err)
	}
	if out.Vault != config.SystemAddress("vault") || out.Fee != config.SystemAddress("fee") {
		t.Fatalf("accounts mismatch: %+v", out)
	}

	in.Savings = "not-an-address"
	if _, err := parseAccounts(in); err == nil || !strings.Contains(err.Error(), "savings") {
		t.Fatalf("expected savings account error, got %v", err)
	}
}
