// Copyright 2025 Insights Agent Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pendingaudio holds pre-generated summary audio keyed by bot ID
// until a trigger phrase consumes it. Entries expire so a bot that never
// asks does not pin stale audio in memory.
package pendingaudio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a pending entry stays consumable
const DefaultTTL = 15 * time.Minute

type entry struct {
	audioB64  string
	expiresAt time.Time
}

// Store is an in-memory map of bot ID to pre-generated audio with
// per-entry expiry. Safe for concurrent use.
type Store struct {
	entries map[string]entry
	ttl     time.Duration
	mutex   sync.Mutex
	logger  *zap.Logger
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewStore creates a pending-audio store. A non-positive TTL falls back
// to DefaultTTL.
func NewStore(ttl time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Put stores audio for a bot, replacing any existing entry and resetting
// its expiry.
func (s *Store) Put(botID, audioB64 string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries[botID] = entry{
		audioB64:  audioB64,
		expiresAt: s.now().Add(s.ttl),
	}

	s.logger.Debug("Stored pending audio",
		zap.String("bot_id", botID),
		zap.Int("audio_length", len(audioB64)))
}

// Take removes and returns the pending audio for a bot. Expired entries
// are treated as absent. Each entry is consumable at most once.
func (s *Store) Take(botID string) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, exists := s.entries[botID]
	if !exists {
		return "", false
	}

	delete(s.entries, botID)

	if s.now().After(e.expiresAt) {
		s.logger.Debug("Pending audio expired", zap.String("bot_id", botID))
		return "", false
	}

	return e.audioB64, true
}

// Len returns the number of stored entries, including any not yet swept
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// StartCleanup launches a background sweep that drops expired entries.
// Call Stop to terminate it.
func (s *Store) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop terminates the background cleanup sweep
func (s *Store) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *Store) sweep() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for botID, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, botID)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Swept expired pending audio", zap.Int("removed", removed))
	}
}
