// Package ocr defines the text-extraction contract the resolution pipeline
// consumes. Providers live in subpackages; the pipeline only sees ordered
// text lines or the failure sentinels from package canonical.
package ocr

import (
	"context"
	"sync"
)

// Engine extracts the text lines of a photographed question. A provider that
// ran but recognized nothing returns the canonical failure sentinel as its
// only line; transport and decoding problems surface as errors.
type Engine interface {
	Name() string
	Extract(ctx context.Context, image []byte) ([]string, error)
}

// Manager hands out a per-chat engine override with a shared default, so the
// bot can switch providers per conversation.
type Manager struct {
	def Engine
	m   sync.Map // chatID -> Engine
}

func NewManager(defaultEngine Engine) *Manager {
	return &Manager{def: defaultEngine}
}

func (m *Manager) Get(chatID int64) Engine {
	if v, ok := m.m.Load(chatID); ok {
		return v.(Engine)
	}
	return m.def
}

func (m *Manager) Set(chatID int64, e Engine) {
	m.m.Store(chatID, e)
}
