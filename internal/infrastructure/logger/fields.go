package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field constructors shared by the sync pipeline so that log keys stay consistent.

func ItemID(id string) zap.Field        { return zap.String("item_id", id) }
func Marketplace(code string) zap.Field { return zap.String("marketplace", code) }
func Action(action string) zap.Field    { return zap.String("action", action) }
func RemoteID(id string) zap.Field      { return zap.String("remote_id", id) }
func Attempt(n int) zap.Field           { return zap.Int("attempt", n) }
func Status(status string) zap.Field    { return zap.String("listing_status", status) }
func FailureKind(kind string) zap.Field { return zap.String("failure_kind", kind) }
func Elapsed(d time.Duration) zap.Field { return zap.Duration("elapsed", d) }
