package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"campusaccess/internal/qrtoken"
)

// Record is a single ledger entry. Records are immutable once appended.
type Record struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      qrtoken.EventType `json:"type"`
	Date      string            `json:"date"` // YYYY-MM-DD, server clock at redemption
	Timestamp time.Time         `json:"timestamp"`
	Location  string            `json:"location"`
	CreatedAt time.Time         `json:"createdAt"`
}

// EnrichedRecord carries the joined user identity for activity feeds.
type EnrichedRecord struct {
	Record
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// DailySummary is derived from a day's records, never stored.
type DailySummary struct {
	Date          string   `json:"date"`
	TotalEntries  int      `json:"totalEntries"`
	TotalExits    int      `json:"totalExits"`
	ActiveUserIDs []string `json:"activeUserIds"`
}

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenReplayed = errors.New("token already used")
	ErrMissingFields = errors.New("user id and type are required")
)

// Ledger is the append-only attendance store.
type Ledger interface {
	Append(ctx context.Context, rec Record) (Record, error)
	ByUser(ctx context.Context, userID string) ([]Record, error)
	ByDate(ctx context.Context, date string) ([]Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// UserInfo is the slice of a user record the ledger join needs.
type UserInfo struct {
	Name  string
	Email string
}

// UserDirectory batch-resolves user ids to display identities.
type UserDirectory interface {
	Lookup(ctx context.Context, ids []string) (map[string]UserInfo, error)
}

// ReplayGuard tracks redeemed token signatures so a still-valid token cannot
// be converted into a second ledger record. Entries self-expire with the
// token TTL.
type ReplayGuard interface {
	FirstUse(ctx context.Context, signature string, ttl time.Duration) (bool, error)
}

// Service verifies tokens and appends attendance records.
type Service struct {
	codec  *qrtoken.Codec
	ledger Ledger
	users  UserDirectory
	guard  ReplayGuard
	ttl    time.Duration
	now    func() time.Time
}

// NewService wires the redemption path. guard may be nil to run without
// replay protection.
func NewService(codec *qrtoken.Codec, ledger Ledger, users UserDirectory, guard ReplayGuard, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 5 * time.Minute
	}
	return &Service{codec: codec, ledger: ledger, users: users, guard: guard, ttl: tokenTTL, now: time.Now}
}

// RedeemRequest is the dual-mode redemption input: a signed token, or a
// trusted direct userId+type pair for manual entry by staff.
type RedeemRequest struct {
	Token    string
	UserID   string
	Type     string
	Location string
}

// Redeem verifies the request and appends exactly one attendance record.
// defaultLocation is used when the request carries none.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest, defaultLocation string) (Record, error) {
	userID := req.UserID
	var eventType qrtoken.EventType

	if req.Token != "" {
		payload, err := s.codec.Verify(req.Token)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if payload.Expired(s.now()) {
			return Record{}, ErrTokenExpired
		}
		if s.guard != nil {
			// Keep the guard entry alive slightly past the token's own
			// expiry so clock skew cannot reopen the window.
			first, err := s.guard.FirstUse(ctx, qrtoken.Signature(req.Token), s.ttl+time.Minute)
			if err != nil {
				// Guard outage must not lock the gates.
				log.Printf("replay guard unavailable: %v", err)
			} else if !first {
				return Record{}, ErrTokenReplayed
			}
		}
		userID = payload.UserID
		eventType = payload.Type
	} else {
		if req.Type == "" {
			return Record{}, ErrMissingFields
		}
		t, err := qrtoken.ParseEventType(req.Type)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrMissingFields, err)
		}
		eventType = t
	}

	if userID == "" || eventType == "" {
		return Record{}, ErrMissingFields
	}

	location := req.Location
	if location == "" {
		location = defaultLocation
	}

	now := s.now().UTC()
	rec := Record{
		UserID:    userID,
		Type:      eventType,
		Date:      now.Format("2006-01-02"),
		Timestamp: now,
		Location:  location,
	}
	return s.ledger.Append(ctx, rec)
}

// History returns a user's records, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, ErrMissingFields
	}
	return s.ledger.ByUser(ctx, userID)
}

// Recent returns the newest records across all users, each enriched with the
// owner's name and email. Users are looked up once per distinct id.
func (s *Service) Recent(ctx context.Context, limit int) ([]EnrichedRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	records, err := s.ledger.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, rec := range records {
		if !seen[rec.UserID] {
			seen[rec.UserID] = true
			ids = append(ids, rec.UserID)
		}
	}
	infos, err := s.users.Lookup(ctx, ids)
	if err != nil {
		log.Printf("user lookup for recent attendance failed: %v", err)
		infos = nil
	}
	out := make([]EnrichedRecord, 0, len(records))
	for _, rec := range records {
		info, ok := infos[rec.UserID]
		if !ok {
			info = UserInfo{Name: "Unknown User"}
		}
		out = append(out, EnrichedRecord{Record: rec, UserName: info.Name, UserEmail: info.Email})
	}
	return out, nil
}

// Summary computes the day's entry/exit totals and the active-user set: a
// user is active when their latest event that day is an entry with no
// matching exit. Records are scanned in chronological order, toggling set
// membership per user.
func (s *Service) Summary(ctx context.Context, date string) (DailySummary, error) {
	records, err := s.ledger.ByDate(ctx, date)
	if err != nil {
		return DailySummary{}, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })

	sum := DailySummary{Date: date}
	active := map[string]bool{}
	for _, rec := range records {
		switch rec.Type {
		case qrtoken.Entry:
			sum.TotalEntries++
			active[rec.UserID] = true
		case qrtoken.Exit:
			sum.TotalExits++
			delete(active, rec.UserID)
		}
	}
	for id := range active {
		sum.ActiveUserIDs = append(sum.ActiveUserIDs, id)
	}
	sort.Strings(sum.ActiveUserIDs)
	return sum, nil
}

// UserName resolves a single user's display name for the scan confirmation
// page. A failed lookup degrades to "User"; the attendance write has already
// happened by the time this runs.
func (s *Service) UserName(ctx context.Context, userID string) string {
	infos, err := s.users.Lookup(ctx, []string{userID})
	if err != nil {
		return "User"
	}
	if info, ok := infos[userID]; ok && info.Name != "" {
		return info.Name
	}
	return "User"
}

// Today returns the current calendar day as stored on records.
func (s *Service) Today() string {
	return s.now().UTC().Format("2006-01-02")
}
