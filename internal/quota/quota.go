package quota

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultDailyLimit applies when no settings file exists yet.
	DefaultDailyLimit = 10

	MinDailyLimit = 1
	MaxDailyLimit = 1000

	// Unlimited is the remaining value reported for VIP users.
	Unlimited = -1
)

const dayFormat = "2006-01-02"

// Record tracks one user's request usage for a single calendar day. A record
// whose Date no longer matches today is stale and counts as zero.
type Record struct {
	Count int    `json:"count"`
	Date  string `json:"date"`
}

// Settings holds the single mutable configuration value.
type Settings struct {
	DailyLimit int       `json:"daily_limit"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists quota state across restarts. The in-memory state is the
// source of truth while the process lives; implementations are a durability
// snapshot only, and callers treat failures as non-fatal.
type Store interface {
	LoadSettings() (Settings, error)
	SaveSettings(Settings) error
	LoadVIPs() ([]int64, error)
	SaveVIPs([]int64) error
	LoadRecords() (map[int64]Record, error)
	SaveRecords(map[int64]Record) error
}

// Service owns all mutable quota state: the daily limit, the VIP set, and the
// per-user per-day ledger. Every mutation goes through its methods under a
// single mutex, and every mutation is mirrored to the Store best-effort.
type Service struct {
	log   *slog.Logger
	store Store
	now   func() time.Time

	mu      sync.Mutex
	limit   int
	vips    []int64
	records map[int64]*Record
}

// NewService loads persisted state from store. Load failures fall back to
// defaults and are logged, never fatal. A missing settings file is written
// back with the default limit.
func NewService(log *slog.Logger, store Store) *Service {
	s := &Service{
		log:     log,
		store:   store,
		now:     time.Now,
		limit:   DefaultDailyLimit,
		records: make(map[int64]*Record),
	}

	settings, err := store.LoadSettings()
	if err != nil {
		log.Warn("loading settings, using default limit", "error", err, "limit", DefaultDailyLimit)
		s.persistSettings()
	} else {
		s.limit = settings.DailyLimit
	}

	vips, err := store.LoadVIPs()
	if err != nil {
		log.Warn("loading vip users", "error", err)
	} else {
		s.vips = vips
	}

	records, err := store.LoadRecords()
	if err != nil {
		log.Warn("loading user records", "error", err)
	} else {
		for id, rec := range records {
			s.records[id] = &Record{Count: rec.Count, Date: rec.Date}
		}
	}

	return s
}

func (s *Service) today() string {
	return s.now().Format(dayFormat)
}

// Limit returns the current daily limit for non-VIP users.
func (s *Service) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// SetLimit changes the daily limit. Values outside [MinDailyLimit,
// MaxDailyLimit] are rejected with no state change.
func (s *Service) SetLimit(limit int) error {
	if limit < MinDailyLimit || limit > MaxDailyLimit {
		return fmt.Errorf("daily limit must be between %d and %d, got %d", MinDailyLimit, MaxDailyLimit, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit = limit
	s.persistSettings()
	return nil
}

// IsVIP reports whether userID is exempt from the daily limit.
func (s *Service) IsVIP(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isVIPLocked(userID)
}

func (s *Service) isVIPLocked(userID int64) bool {
	for _, id := range s.vips {
		if id == userID {
			return true
		}
	}
	return false
}

// AddVIP adds userID to the VIP set and reports whether it was newly added.
// Adding an existing VIP is a no-op.
func (s *Service) AddVIP(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isVIPLocked(userID) {
		return false
	}
	s.vips = append(s.vips, userID)
	s.persistVIPs()
	return true
}

// RemoveVIP removes userID from the VIP set and reports whether it was present.
func (s *Service) RemoveVIP(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.vips {
		if id == userID {
			s.vips = append(s.vips[:i], s.vips[i+1:]...)
			s.persistVIPs()
			return true
		}
	}
	return false
}

// VIPs returns the VIP user IDs in insertion order.
func (s *Service) VIPs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.vips))
	copy(out, s.vips)
	return out
}

// CheckLimit decides whether userID may issue a request right now. VIPs are
// always allowed with remaining == Unlimited. For everyone else the user's
// record is created or rolled over to today as needed, and remaining is the
// number of requests left under the current limit. CheckLimit never charges
// usage; callers must call Increment separately after a successful request.
func (s *Service) CheckLimit(userID int64) (allowed bool, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isVIPLocked(userID) {
		return true, Unlimited
	}

	rec := s.rolledOverLocked(userID)
	remaining = s.limit - rec.Count
	return remaining > 0, remaining
}

// Usage returns the requests used today and the current limit, for display.
func (s *Service) Usage(userID int64) (used, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rolledOverLocked(userID)
	return rec.Count, s.limit
}

// rolledOverLocked returns the user's current-day record, creating it lazily
// and resetting a stale one. A rollover is itself a mutation and is persisted.
func (s *Service) rolledOverLocked(userID int64) *Record {
	today := s.today()
	rec, ok := s.records[userID]
	if !ok {
		rec = &Record{Date: today}
		s.records[userID] = rec
		return rec
	}
	if rec.Date != today {
		rec.Count = 0
		rec.Date = today
		s.persistRecords()
	}
	return rec
}

// Increment charges one request to userID's current-day record. VIPs are not
// charged. Call only after the upstream request actually succeeded.
func (s *Service) Increment(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isVIPLocked(userID) {
		return
	}
	rec := s.rolledOverLocked(userID)
	rec.Count++
	s.persistRecords()
}

// ResetAll wipes the entire ledger for all users and persists the empty state.
func (s *Service) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int64]*Record)
	s.persistRecords()
}

// Persistence is fire-and-forget: a failed save leaves disk stale but must
// never unwind the mutating call.

func (s *Service) persistSettings() {
	err := s.store.SaveSettings(Settings{DailyLimit: s.limit, UpdatedAt: s.now()})
	if err != nil {
		s.log.Warn("saving settings", "error", err)
	}
}

func (s *Service) persistVIPs() {
	if err := s.store.SaveVIPs(s.vips); err != nil {
		s.log.Warn("saving vip users", "error", err)
	}
}

func (s *Service) persistRecords() {
	out := make(map[int64]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = *rec
	}
	if err := s.store.SaveRecords(out); err != nil {
		s.log.Warn("saving user records", "error", err)
	}
}
