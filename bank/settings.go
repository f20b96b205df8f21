/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package bank

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"github.com/launix-de/go-mysqlstack/xlog"
)

// Settings controls growth, logging and tracing of a Bank.
type Settings struct {
	CapExponent uint   // block idx maps pageSize << min(idx, CapExponent) bytes
	MaxBytes    int64  // budget for all mappings of a bank, 0 = unlimited
	LogLevel    string // DEBUG, INFO, WARNING or ERROR
	Trace       string // chrome trace output file, empty = off
}

// DefaultCapExponent caps blocks at 2048 pages.
const DefaultCapExponent = 11

var settingKeys = []string{"CapExponent", "MaxBytes", "LogLevel", "Trace"}

var logLevels = map[string]xlog.Option{
	"DEBUG":   xlog.Level(xlog.DEBUG),
	"INFO":    xlog.Level(xlog.INFO),
	"WARNING": xlog.Level(xlog.WARNING),
	"ERROR":   xlog.Level(xlog.ERROR),
}

func DefaultSettings() Settings {
	return Settings{CapExponent: DefaultCapExponent, LogLevel: "INFO"}
}

// SettingsFromEnv starts from DefaultSettings and applies CCLOSURE_CAP_EXPONENT,
// CCLOSURE_MAX_BYTES, CCLOSURE_LOG and CCLOSURE_TRACE.
func SettingsFromEnv() (Settings, error) {
	s := DefaultSettings()
	for _, kv := range [][2]string{
		{"CCLOSURE_CAP_EXPONENT", "CapExponent"},
		{"CCLOSURE_MAX_BYTES", "MaxBytes"},
		{"CCLOSURE_LOG", "LogLevel"},
		{"CCLOSURE_TRACE", "Trace"},
	} {
		v, ok := os.LookupEnv(kv[0])
		if !ok {
			continue
		}
		if err := s.Change(kv[1], v); err != nil {
			return s, fmt.Errorf("%s: %w", kv[0], err)
		}
	}
	return s, nil
}

// Keys lists the names accepted by Get and Change.
func (s *Settings) Keys() []string {
	return settingKeys
}

func (s *Settings) Get(key string) (string, error) {
	switch key {
	case "CapExponent":
		return strconv.FormatUint(uint64(s.CapExponent), 10), nil
	case "MaxBytes":
		if s.MaxBytes == 0 {
			return "0", nil
		}
		return units.BytesSize(float64(s.MaxBytes)), nil
	case "LogLevel":
		return s.LogLevel, nil
	case "Trace":
		return s.Trace, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
}

// Change sets key from its string form. MaxBytes takes sizes like "64m".
func (s *Settings) Change(key, value string) error {
	switch key {
	case "CapExponent":
		v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 8)
		if err != nil {
			return err
		}
		if v > 30 {
			return fmt.Errorf("CapExponent %d out of range", v)
		}
		s.CapExponent = uint(v)
	case "MaxBytes":
		value = strings.TrimSpace(value)
		if value == "" || value == "0" {
			s.MaxBytes = 0
			return nil
		}
		v, err := units.RAMInBytes(value)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("MaxBytes %d is negative", v)
		}
		s.MaxBytes = v
	case "LogLevel":
		lvl := strings.ToUpper(strings.TrimSpace(value))
		if _, ok := logLevels[lvl]; !ok {
			return fmt.Errorf("unknown log level %q", value)
		}
		s.LogLevel = lvl
	case "Trace":
		s.Trace = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return nil
}

func (s *Settings) logger() *xlog.Log {
	opt, ok := logLevels[s.LogLevel]
	if !ok {
		opt = logLevels["INFO"]
	}
	return xlog.NewStdLog(opt)
}
