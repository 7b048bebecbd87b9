package main

import (
	"testing"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/env"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
)

func TestDefaultSegmentsAreValid(t *testing.T) {
	if _, err := wheel.NormalizeSegments(defaultSegments); err != nil {
		t.Fatalf("default segments rejected: %v", err)
	}
}

func TestGateOptionsFromEnv(t *testing.T) {
	opts := gateOptions(env.EnvValue{Cooldown: 12 * time.Hour, FailOpen: false})
	if opts.Cooldown != 12*time.Hour || opts.FailOpen {
		t.Fatalf("unexpected options: %+v", opts)
	}

	opts = gateOptions(env.EnvValue{FailOpen: true})
	if opts.Cooldown != 48*time.Hour || !opts.FailOpen {
		t.Fatalf("zero cooldown should keep the default: %+v", opts)
	}
}

func TestRecordStoreConfigFromEnv(t *testing.T) {
	password := "pw"
	dsn := "user:pass@tcp(localhost:3306)/wheel"
	cfg := recordStoreConfig(env.EnvValue{
		RecordBackend: "redis",
		RedisAddr:     "localhost:6379",
		RedisPassword: &password,
		MySQLDSN:      &dsn,
	})
	if cfg.Backend != "redis" || cfg.RedisAddr != "localhost:6379" || cfg.RedisPassword != "pw" || cfg.MySQLDSN != dsn {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if cfg := recordStoreConfig(env.EnvValue{}); cfg.RedisPassword != "" || cfg.MySQLDSN != "" {
		t.Fatalf("nil secrets should stay empty: %+v", cfg)
	}
}

func TestEngineConfigFromEnv(t *testing.T) {
	cfg := engineConfig(env.EnvValue{
		ReducedMotion:  true,
		ExtraRotations: 6,
		PrizeDraw:      true,
		DefaultTarget:  "3",
		WorkerPoolSize: 2,
	})
	if !cfg.Wheel.ReducedMotion || cfg.Wheel.ExtraRotations != 6 || !cfg.PrizeDraw || cfg.DefaultTarget != "3" || cfg.WorkerPoolSize != 2 {
		t.Fatalf("unexpected engine config: %+v", cfg)
	}
}
