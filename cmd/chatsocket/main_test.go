package main

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/orchestra-mcp/chat/config"
)

func TestRunFailsWhenStoreCannotOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.JWTSecret = "x"
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "missing", "dir", "chat.db")

	assert.Error(t, run(cfg, zerolog.Nop()))
}
