// Package config parses and validates the toolshare CLI's positional
// arguments into a fair.Config plus the listen address.
package config

import (
	"fmt"
	"strconv"

	"github.com/KereMath/toolshare/lib/fair"
)

// Config is the fully parsed command line: where to listen and the
// scheduler parameters to run with.
type Config struct {
	Addr string
	Fair fair.Config
}

// Parse validates and converts the four positional arguments
// <conn> <q> <Q> <k>, matching the original CLI's argument order and
// error conditions (q, Q, k positive; k bounded by fair.MaxTools).
func Parse(conn, qArg, QArg, kArg string) (Config, error) {
	q, err := strconv.Atoi(qArg)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid q %q: %w", qArg, err)
	}
	Q, err := strconv.Atoi(QArg)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid Q %q: %w", QArg, err)
	}
	k, err := strconv.Atoi(kArg)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid k %q: %w", kArg, err)
	}

	fairCfg := fair.DefaultConfig(k, q, Q)
	if err := fairCfg.Validate(); err != nil {
		return Config{}, err
	}

	if conn == "" {
		return Config{}, fmt.Errorf("config: empty connection string")
	}

	return Config{Addr: conn, Fair: fairCfg}, nil
}
