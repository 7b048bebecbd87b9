package main

import (
	"github.com/ichi0g0y/spinwheel/internal/eligibility"
	"github.com/ichi0g0y/spinwheel/internal/env"
	"github.com/ichi0g0y/spinwheel/internal/identity"
	"github.com/ichi0g0y/spinwheel/internal/localdb"
	"github.com/ichi0g0y/spinwheel/internal/recordstore"
	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/ichi0g0y/spinwheel/internal/spinengine"
	"github.com/ichi0g0y/spinwheel/internal/types"
	"github.com/ichi0g0y/spinwheel/internal/wheel"
	"go.uber.org/zap"
)

// 保存済みの区画がないときの初期ホイール
var defaultSegments = []types.Segment{
	{ID: "1", Name: "Grand Prize", Weight: 1},
	{ID: "2", Name: "Sticker", Weight: 6},
	{ID: "3", Name: "Coffee Ticket", Weight: 3},
	{ID: "4", Name: "Try Again", Weight: 8},
	{ID: "5", Name: "Tote Bag", Weight: 2},
	{ID: "6", Name: "Badge", Weight: 5},
}

func configureLogger() {
	if env.Value.LogDir != "" {
		logger.SetFileOutput(env.Value.LogDir)
	}
	logger.Init(env.Value.DebugMode)
	if env.Value.DebugMode {
		logger.Info("Debug mode enabled")
	}
}

func recordStoreConfig(v env.EnvValue) recordstore.Config {
	cfg := recordstore.Config{
		Backend:   v.RecordBackend,
		RedisAddr: v.RedisAddr,
	}
	if v.RedisPassword != nil {
		cfg.RedisPassword = *v.RedisPassword
	}
	if v.MySQLDSN != nil {
		cfg.MySQLDSN = *v.MySQLDSN
	}
	return cfg
}

func gateOptions(v env.EnvValue) eligibility.Options {
	opts := eligibility.DefaultOptions()
	if v.Cooldown > 0 {
		opts.Cooldown = v.Cooldown
	}
	opts.FailOpen = v.FailOpen
	return opts
}

func wheelOptions(v env.EnvValue) wheel.Options {
	return wheel.Options{
		ReducedMotion:         v.ReducedMotion,
		ExtraRotations:        v.ExtraRotations,
		ReducedExtraRotations: v.ReducedExtraRotations,
	}
}

func engineConfig(v env.EnvValue) spinengine.Config {
	return spinengine.Config{
		Wheel:          wheelOptions(v),
		PrizeDraw:      v.PrizeDraw,
		DefaultTarget:  v.DefaultTarget,
		WorkerPoolSize: v.WorkerPoolSize,
	}
}

func newVerifier(v env.EnvValue) *identity.TokenVerifier {
	secret := ""
	if v.JWTSecret != nil {
		secret = *v.JWTSecret
	} else {
		logger.Warn("JWT_SECRET is not set; sign-in is disabled")
	}
	return identity.NewTokenVerifier(secret, v.JWTIssuer)
}

func loadSegments(engine *spinengine.Engine) {
	segments, err := localdb.GetWheelSegments()
	if err != nil {
		logger.Warn("Failed to load wheel segments, using defaults", zap.Error(err))
	}
	if len(segments) == 0 {
		segments = defaultSegments
		if err := localdb.SaveWheelSegments(segments); err != nil {
			logger.Warn("Failed to save default wheel segments", zap.Error(err))
		}
	}
	if err := engine.SetSegments(segments); err != nil {
		logger.Error("Stored wheel segments are invalid", zap.Error(err))
	}
}

// applySettings pushes reloaded settings into the running components.
// The record store backend is only read at startup.
func applySettings(v env.EnvValue, gate *eligibility.Gate, session *identity.Session, engine *spinengine.Engine) {
	gate.SetOptions(gateOptions(v))
	engine.SetOptions(wheelOptions(v), v.PrizeDraw, v.DefaultTarget)
	session.SetVerifier(newVerifier(v))
	configureLogger()
	logger.Info("Settings applied",
		zap.Duration("cooldown", v.Cooldown),
		zap.Bool("fail_open", v.FailOpen),
		zap.Bool("reduced_motion", v.ReducedMotion),
		zap.Bool("prize_draw", v.PrizeDraw))
}
