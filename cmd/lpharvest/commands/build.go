package commands

import (
	"io"

	"github.com/teranos/lpharvest/am"
	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/harvest"
	"github.com/teranos/lpharvest/logger"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/pacing"
	"github.com/teranos/lpharvest/progress"
	"github.com/teranos/lpharvest/so"
	"github.com/teranos/lpharvest/version"
)

// Progress display modes
const (
	ProgressAuto   = "auto"
	ProgressPretty = "pretty"
	ProgressJSON   = "json"
	ProgressNone   = "none"
)

func newClient(cfg *am.Config) (*logpoint.Client, error) {
	creds := logpoint.NewCredentials(cfg.Logpoint.BaseURL, cfg.Logpoint.Account, cfg.Logpoint.SecretKey)
	return logpoint.NewClient(creds, logpoint.Options{
		Timeout:              cfg.Logpoint.Timeout(),
		SearchTimeout:        cfg.Search.SearchTimeout(),
		WaiterID:             cfg.Logpoint.WaiterID,
		AllowPrivateNetworks: cfg.Logpoint.AllowPrivateNetworks,
		UserAgent:            version.Get().UserAgent(),
		Record: logpoint.RecordOptions{
			IDField:        cfg.Search.IDField,
			TimestampField: cfg.Search.TimestampField,
		},
	}, logger.ComponentLogger("logpoint"))
}

func pacingConfig(c am.PacingConfig) pacing.Config {
	return pacing.Config{
		Delay:             c.Delay(),
		MaxCallsPerMinute: c.MaxCallsPerMinute,
		MaxRetries:        c.MaxRetries,
		InitialBackoff:    c.InitialBackoff(),
		MaxBackoff:        c.MaxBackoff(),
		Jitter:            c.Jitter,
	}
}

func harvestConfig(cfg *am.Config) (harvest.Config, error) {
	policy, err := harvest.ParseSplitPolicy(cfg.Harvest.SplitPolicy)
	if err != nil {
		return harvest.Config{}, err
	}
	return harvest.Config{
		Fanout:        cfg.Harvest.Fanout,
		SplitPolicy:   policy,
		MaxEmptyPolls: cfg.Search.MaxEmptyPolls,
	}, nil
}

func newEmitter(mode string, w io.Writer, verbosity int) (progress.Emitter, error) {
	switch mode {
	case ProgressAuto, "":
		if logger.JSONOutput {
			return progress.NewJSONEmitter(w), nil
		}
		return progress.NewCLIEmitterTo(w, verbosity), nil
	case ProgressPretty:
		return progress.NewCLIEmitterTo(w, verbosity), nil
	case ProgressJSON:
		return progress.NewJSONEmitter(w), nil
	case ProgressNone:
		return progress.Nop{}, nil
	default:
		return nil, errors.WithHint(errors.NewInvalidRequestError("unknown progress mode %q", mode),
			"use auto, pretty, json or none")
	}
}

func writeOptions(cfg *am.Config) (so.WriteOptions, error) {
	format, err := so.ParseFormat(cfg.Output.Format)
	if err != nil {
		return so.WriteOptions{}, err
	}
	return so.WriteOptions{
		Format:    format,
		Delimiter: cfg.Output.DelimiterRune(),
		Missing:   cfg.Output.MissingValue,
		Logger:    logger.ComponentLogger("so"),
	}, nil
}
