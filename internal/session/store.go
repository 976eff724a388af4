package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/whatsapp-hospital-bot/internal/db"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrStaleSession = errors.New("session was modified concurrently")
)

// Store persists sessions keyed by phone. Put bumps Version and fails with
// ErrStaleSession when the stored version no longer matches.
type Store interface {
	Get(ctx context.Context, phone string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, phone string) error
}

type PgStore struct {
	conn db.Conn
}

func NewPgStore(conn db.Conn) *PgStore {
	return &PgStore{conn: conn}
}

func (st *PgStore) Get(ctx context.Context, phone string) (*Session, error) {
	var (
		s     Session
		state State
		data  []byte
		lang  string
	)
	err := st.conn.QueryRow(ctx, `
		SELECT phone, state, data, language, version, updated_at
		FROM sessions
		WHERE phone = $1
	`, phone).Scan(&s.Phone, &state, &data, &lang, &s.Version, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	step, err := Decode(state, data)
	if err != nil {
		return nil, err
	}
	s.Step = step
	s.Language = Language(lang)
	return &s, nil
}

// Put inserts (Version == 0, replacing any existing row) or conditionally
// updates the session, then stores the new version on s.
func (st *PgStore) Put(ctx context.Context, s *Session) error {
	state, data, err := Encode(s.Step)
	if err != nil {
		return err
	}
	lang := s.Language
	if lang == "" {
		lang = LanguageEnglish
	}

	var (
		version   int
		updatedAt time.Time
	)

	if s.Version == 0 {
		err = st.conn.QueryRow(ctx, `
			INSERT INTO sessions (phone, state, data, language, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, now())
			ON CONFLICT (phone) DO UPDATE
			SET state = EXCLUDED.state,
			    data = EXCLUDED.data,
			    language = EXCLUDED.language,
			    version = sessions.version + 1,
			    updated_at = now()
			RETURNING version, updated_at
		`, s.Phone, string(state), data, string(lang)).Scan(&version, &updatedAt)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
	} else {
		err = st.conn.QueryRow(ctx, `
			UPDATE sessions
			SET state = $2,
			    data = $3,
			    language = $4,
			    version = version + 1,
			    updated_at = now()
			WHERE phone = $1
			  AND version = $5
			RETURNING version, updated_at
		`, s.Phone, string(state), data, string(lang), s.Version).Scan(&version, &updatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStaleSession
			}
			return fmt.Errorf("update session: %w", err)
		}
	}

	s.Version = version
	s.UpdatedAt = updatedAt
	s.Language = lang
	return nil
}

func (st *PgStore) Delete(ctx context.Context, phone string) error {
	if _, err := st.conn.Exec(ctx, `DELETE FROM sessions WHERE phone = $1`, phone); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store with the same versioning rules as PgStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, phone string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s.Step == nil {
		return fmt.Errorf("put session: %w", ErrUnknownState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.sessions[s.Phone]
	switch {
	case s.Version == 0 && exists:
		s.Version = cur.Version + 1
	case s.Version == 0:
		s.Version = 1
	case !exists || cur.Version != s.Version:
		return ErrStaleSession
	default:
		s.Version++
	}
	if s.Language == "" {
		s.Language = LanguageEnglish
	}
	s.UpdatedAt = m.now()
	m.sessions[s.Phone] = *s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, phone)
	return nil
}
