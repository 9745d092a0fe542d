package app

import (
	"time"

	"notisum/internal/config"
	"notisum/internal/ingest"
	"notisum/internal/paywall"
	"notisum/internal/remote"
	"notisum/internal/store"
	"notisum/internal/summary"
	logx "notisum/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return store.Config{}, err
	}
	dedup, err := config.ParseDurationOrDefault("storage.dedup_window", cfg.Storage.DedupWindow, 0)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Path:                    cfg.Storage.Path,
		BusyTimeout:             busy,
		DedupWindow:             dedup,
		DefaultAutoSummaryCount: int64(cfg.Summary.DefaultThreshold),
	}, nil
}

func mapRemoteConfig(cfg *config.Config) (remote.Config, error) {
	timeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 30*time.Second)
	if err != nil {
		return remote.Config{}, err
	}
	return remote.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    timeout,
		RatePerSec: cfg.API.RatePerSec,
	}, nil
}

func mapSummaryConfig(cfg *config.Config) (summary.Config, error) {
	delay, err := config.ParseDurationOrDefault("summary.republish_delay", cfg.Summary.RepublishDelay, 0)
	if err != nil {
		return summary.Config{}, err
	}
	return summary.Config{
		MinMessages:    cfg.Summary.MinMessages,
		RepublishDelay: delay,
	}, nil
}

func mapPaywallConfig(cfg *config.Config) (paywall.Config, error) {
	cooldown, err := config.ParseDurationOrDefault("paywall.cooldown", cfg.Paywall.Cooldown, 0)
	if err != nil {
		return paywall.Config{}, err
	}
	return paywall.Config{
		Threshold: cfg.Paywall.UnreadThreshold,
		Cooldown:  cooldown,
	}, nil
}

func mapIngestConfig(cfg *config.Config) ingest.Config {
	return ingest.Config{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Sources:   cfg.Sources.Enabled,
		SelfName:  cfg.Sources.SelfName,
	}
}
