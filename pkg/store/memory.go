package store

import (
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/toolfront/mcp-auth-bridge/pkg/encryption"
)

const shardCount = 16

// Memory is the in-memory Store. Entries are spread over a fixed set of
// shards, each with its own lock, so authentications for unrelated keys
// never serialize on a single mutex.
//
// Expiry is enforced on read; the sweeper only reclaims memory.
type Memory struct {
	shards [shardCount]*shard

	cipher *encryption.Cipher

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

type shard struct {
	mu     sync.RWMutex
	codes  map[string]codeEntry
	tokens map[string]tokenEntry
}

type codeEntry struct {
	md        CodeMetadata
	expiresAt time.Time
}

type tokenEntry struct {
	tok ProviderToken
	// encrypted marks whether tok's token strings are ciphertext.
	encrypted bool
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithCipher encrypts provider token values at rest with the given cipher.
func WithCipher(c *encryption.Cipher) MemoryOption {
	return func(m *Memory) { m.cipher = c }
}

// WithSweepInterval overrides the default one-minute sweep interval.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepInterval = d }
}

// NewMemory creates an in-memory store and starts its background sweeper.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		sweepInterval: time.Minute,
		stop:          make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{
			codes:  make(map[string]codeEntry),
			tokens: make(map[string]tokenEntry),
		}
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweepLoop()
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// PutCode records a single-use code.
func (m *Memory) PutCode(code string, md CodeMetadata, ttl time.Duration) error {
	s := m.shardFor(code)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = codeEntry{md: md, expiresAt: time.Now().Add(ttl)}
	return nil
}

// ConsumeCode removes and returns the code's metadata. The delete happens
// under the shard's write lock, so of two racing consumers exactly one wins.
func (m *Memory) ConsumeCode(code string) (CodeMetadata, error) {
	s := m.shardFor(code)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		return CodeMetadata{}, ErrNotFound
	}
	delete(s.codes, code)
	if time.Now().After(entry.expiresAt) {
		return CodeMetadata{}, ErrNotFound
	}
	return entry.md, nil
}

// PutProviderToken records the mapping for subject, last writer wins.
func (m *Memory) PutProviderToken(subject string, tok ProviderToken) error {
	entry := tokenEntry{tok: tok}
	if m.cipher != nil {
		sealed, err := m.cipher.EncryptString(tok.AccessToken)
		if err != nil {
			return err
		}
		entry.tok.AccessToken = sealed
		if tok.RefreshToken != "" {
			sealed, err = m.cipher.EncryptString(tok.RefreshToken)
			if err != nil {
				return err
			}
			entry.tok.RefreshToken = sealed
		}
		entry.encrypted = true
	}

	s := m.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[subject] = entry
	return nil
}

// GetProviderToken returns the mapping for subject. A mapping past its
// recorded expiry is treated as absent.
func (m *Memory) GetProviderToken(subject string) (ProviderToken, error) {
	tok, err := m.GetMapping(subject)
	if err != nil {
		return ProviderToken{}, err
	}
	if tok.Stale(time.Now()) {
		return ProviderToken{}, ErrNotFound
	}
	return tok, nil
}

// GetMapping returns the raw mapping for subject, stale or not.
func (m *Memory) GetMapping(subject string) (ProviderToken, error) {
	s := m.shardFor(subject)
	s.mu.RLock()
	entry, ok := s.tokens[subject]
	s.mu.RUnlock()

	if !ok {
		return ProviderToken{}, ErrNotFound
	}

	tok := entry.tok
	if entry.encrypted {
		var err error
		tok.AccessToken, err = m.cipher.DecryptString(entry.tok.AccessToken)
		if err != nil {
			return ProviderToken{}, err
		}
		if entry.tok.RefreshToken != "" {
			tok.RefreshToken, err = m.cipher.DecryptString(entry.tok.RefreshToken)
			if err != nil {
				return ProviderToken{}, err
			}
		}
	}
	return tok, nil
}

// Invalidate removes the mapping for subject.
func (m *Memory) Invalidate(subject string) error {
	s := m.shardFor(subject)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, subject)
	return nil
}

// Close stops the background sweeper.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep drops expired codes and unrefreshable stale token mappings.
func (m *Memory) sweep(now time.Time) {
	var reclaimed int
	for _, s := range m.shards {
		s.mu.Lock()
		for code, entry := range s.codes {
			if now.After(entry.expiresAt) {
				delete(s.codes, code)
				reclaimed++
			}
		}
		for subject, entry := range s.tokens {
			if entry.tok.Stale(now) && entry.tok.RefreshToken == "" {
				delete(s.tokens, subject)
				reclaimed++
			}
		}
		s.mu.Unlock()
	}
	if reclaimed > 0 {
		log.Printf("store: swept %d expired entries", reclaimed)
	}
}

var _ Store = (*Memory)(nil)
