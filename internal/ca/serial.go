package ca

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/robcowart/docsign/internal/apperr"
	"go.uber.org/zap"
)

// NextSerial returns the next certificate serial and persists the counter
// before returning. Calls are serialized, so concurrent issuances always
// receive distinct, strictly increasing serials.
func (m *RootManager) NextSerial() (*big.Int, error) {
	if _, err := m.Root(); err != nil {
		return nil, err
	}

	m.serialMu.Lock()
	defer m.serialMu.Unlock()

	path := m.path(serialFile)
	serial, err := readSerial(path)
	if err != nil {
		return nil, unavailable("cannot read serial file", err)
	}

	// The file is the source of truth; refuse to hand out a serial that is
	// not above the last one seen by this process.
	if m.lastSerial != nil && serial.Cmp(m.lastSerial) <= 0 {
		m.logger.Error("Serial counter moved backwards",
			zap.String("file", serial.Text(16)),
			zap.String("last", m.lastSerial.Text(16)),
		)
		return nil, apperr.New(apperr.KindCAUnavailable, "ca.NextSerial", "serial counter moved backwards")
	}

	next := new(big.Int).Add(serial, big.NewInt(1))
	if err := writeSerial(path, next); err != nil {
		return nil, unavailable("cannot update serial file", err)
	}

	m.lastSerial = serial
	return new(big.Int).Set(serial), nil
}

func readSerial(path string) (*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read serial file: %w", err)
	}

	serialHex := strings.TrimSpace(string(data))
	serial, ok := new(big.Int).SetString(serialHex, 16)
	if !ok || serial.Sign() <= 0 {
		return nil, fmt.Errorf("failed to parse serial %q", serialHex)
	}
	return serial, nil
}

// serialText is the serial file content: even length hex and a newline,
// the layout used by openssl-style CA directories.
func serialText(serial *big.Int) []byte {
	text := serial.Text(16)
	if len(text)%2 == 1 {
		text = "0" + text
	}
	return []byte(text + "\n")
}

func writeSerial(path string, serial *big.Int) error {
	if err := writeFileAtomic(path, serialText(serial), 0o644); err != nil {
		return fmt.Errorf("failed to update serial file: %w", err)
	}
	return nil
}
