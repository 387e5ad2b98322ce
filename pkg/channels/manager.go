// DotAgent - Ultra-lightweight personal AI agent
// Inspired by and based on nanobot: https://github.com/HKUDS/nanobot
// License: MIT
//
// Copyright (c) 2026 DotAgent contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/logger"
)

// Manager owns the chat transports and routes engine replies back to the
// channel each check-in came from.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
	cancel   context.CancelFunc
	done     chan struct{}
}

// ChannelStatus is one row of Manager.Status.
type ChannelStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		bus:      messageBus,
		channels: make(map[string]Channel),
	}

	discordCfg := cfg.Channels.Discord
	if discordCfg.Enabled {
		if strings.TrimSpace(discordCfg.Token) == "" {
			return nil, fmt.Errorf("channels.discord.token is required when discord is enabled")
		}
		discord, err := NewDiscordChannel(discordCfg, messageBus)
		if err != nil {
			return nil, fmt.Errorf("initialize Discord channel: %w", err)
		}
		m.channels[discord.Name()] = discord
	}

	logger.InfoCF("channels", "Channel manager ready", map[string]interface{}{
		"enabled_channels": strings.Join(m.GetEnabledChannels(), ","),
	})
	return m, nil
}

// StartAll starts every registered channel and the reply dispatcher. If any
// channel fails, the ones already started are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	var started []Channel
	var errs []error
	for _, name := range m.sortedNames() {
		ch := m.channels[name]
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		started = append(started, ch)
	}
	if len(errs) > 0 {
		for _, ch := range started {
			if err := ch.Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]interface{}{
					"channel": ch.Name(),
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("start channels: %w", errors.Join(errs...))
	}

	if m.cancel != nil {
		m.cancel()
	}
	dispatchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		m.dispatchReplies(dispatchCtx)
	}()

	logger.InfoCF("channels", "Channels started", map[string]interface{}{"count": len(started)})
	return nil
}

// StopAll stops the dispatcher and every channel, then waits for the
// dispatcher to exit or ctx to expire.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	done := m.done
	m.cancel, m.done = nil, nil
	for _, name := range m.sortedNames() {
		if err := m.channels[name].Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.InfoC("channels", "Channels stopped")
	return nil
}

func (m *Manager) dispatchReplies(ctx context.Context) {
	var undeliverable int
	defer func() {
		logger.InfoCF("channels", "Reply dispatcher stopped", map[string]interface{}{"undeliverable": undeliverable})
	}()

	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		// Replies to HTTP or CLI check-ins have no chat transport.
		if msg.Channel == "" {
			continue
		}

		m.mu.RLock()
		ch, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			undeliverable++
			logger.WarnCF("channels", "Reply for unknown channel", map[string]interface{}{
				"channel":    msg.Channel,
				"session_id": msg.SessionID,
			})
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			undeliverable++
			logger.ErrorCF("channels", "Reply delivery failed", map[string]interface{}{
				"channel":    msg.Channel,
				"session_id": msg.SessionID,
				"error":      err.Error(),
			})
		}
	}
}

// sortedNames must be called with mu held.
func (m *Manager) sortedNames() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Status() []ChannelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChannelStatus, 0, len(m.channels))
	for _, name := range m.sortedNames() {
		out = append(out, ChannelStatus{Name: name, Running: m.channels[name].IsRunning()})
	}
	return out
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNames()
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}
