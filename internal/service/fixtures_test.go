package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

type profileStoreStub struct {
	items map[string]models.TeacherProfile
	err   error
}

func newProfileStore(profiles ...models.TeacherProfile) *profileStoreStub {
	store := &profileStoreStub{items: map[string]models.TeacherProfile{}}
	for _, p := range profiles {
		if p.Status == "" {
			p.Status = models.StatusActive
		}
		store.items[p.ID] = p
	}
	return store
}

func (s *profileStoreStub) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *profileStoreStub) ListActive(ctx context.Context, ids []string) ([]models.TeacherProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.TeacherProfile, 0, len(s.items))
	for _, p := range s.items {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type slotStoreStub struct {
	mu    sync.Mutex
	items []models.WeeklyAvailabilitySlot
	err   error
}

func (s *slotStoreStub) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.WeeklyAvailabilitySlot, 0)
	for _, slot := range s.items {
		if slot.TeacherID == teacherID && slot.IsActive() {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *slotStoreStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WeeklyAvailabilitySlot, 0)
	for _, slot := range s.items {
		if slot.TeacherID == teacherID {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (s *slotStoreStub) FindByID(ctx context.Context, id string) (*models.WeeklyAvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.items {
		if slot.ID == id {
			item := slot
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *slotStoreStub) Create(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == "" {
		slot.ID = fmt.Sprintf("slot-%d", len(s.items)+1)
	}
	if slot.Status == "" {
		slot.Status = models.StatusActive
	}
	s.items = append(s.items, *slot)
	return nil
}

func (s *slotStoreStub) Update(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == slot.ID {
			s.items[i] = *slot
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *slotStoreStub) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

type periodStoreStub struct {
	mu    sync.Mutex
	items []models.UnavailabilityPeriod
	err   error
}

func (s *periodStoreStub) ListBlockingInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.UnavailabilityPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.UnavailabilityPeriod, 0)
	for _, p := range s.items {
		if p.TeacherID == teacherID && p.Blocks() && interval.Overlaps(p.StartAt, p.EndAt, start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *periodStoreStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.UnavailabilityPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UnavailabilityPeriod, 0)
	for _, p := range s.items {
		if p.TeacherID == teacherID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *periodStoreStub) FindByID(ctx context.Context, id string) (*models.UnavailabilityPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.items {
		if p.ID == id {
			item := p
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *periodStoreStub) Create(ctx context.Context, p *models.UnavailabilityPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("period-%d", len(s.items)+1)
	}
	s.items = append(s.items, *p)
	return nil
}

func (s *periodStoreStub) UpdateApproval(ctx context.Context, id string, approval models.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Approval = approval
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *periodStoreStub) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

// occurrenceStoreStub is an in-memory class_occurrences table honouring the
// (recurring_pattern_id, occurrence_key) unique constraint.
type occurrenceStoreStub struct {
	mu        sync.Mutex
	items     []models.ClassOccurrence
	seq       int
	err       error
	insertErr map[string]error
	updateErr map[string]error
}

func (s *occurrenceStoreStub) ListBusyInRange(ctx context.Context, teacherID string, start, end time.Time, excludeID string) ([]models.ClassOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ClassOccurrence, 0)
	for _, o := range s.items {
		if o.TeacherID != teacherID || !o.Status.IsBusy() || (excludeID != "" && o.ID == excludeID) {
			continue
		}
		if interval.Overlaps(o.ScheduledAt, o.EndsAt(), start, end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *occurrenceStoreStub) ListByTeacherInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.ClassOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClassOccurrence, 0)
	for _, o := range s.items {
		if o.TeacherID == teacherID && o.Status != models.OccurrenceCancelled && !o.ScheduledAt.Before(start) && o.ScheduledAt.Before(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *occurrenceStoreStub) ListForReanchor(ctx context.Context, timezone string, from time.Time) ([]models.ClassOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ClassOccurrence, 0)
	for _, o := range s.items {
		if o.Status == models.OccurrenceScheduled && o.AnchorTimezone == timezone && !o.ScheduledAt.Before(from) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *occurrenceStoreStub) ListAnchorTimezones(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	zones := make([]string, 0)
	for _, o := range s.items {
		if o.Status != models.OccurrenceScheduled || o.AnchorTimezone == "" {
			continue
		}
		if _, ok := seen[o.AnchorTimezone]; !ok {
			seen[o.AnchorTimezone] = struct{}{}
			zones = append(zones, o.AnchorTimezone)
		}
	}
	sort.Strings(zones)
	return zones, nil
}

func (s *occurrenceStoreStub) FindByID(ctx context.Context, id string) (*models.ClassOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.items {
		if o.ID == id {
			item := o
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *occurrenceStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(item)
	return nil
}

func (s *occurrenceStoreStub) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.RecurringPatternID != nil {
		if err := s.insertErr[*item.RecurringPatternID]; err != nil {
			return false, err
		}
	}
	for _, o := range s.items {
		if o.RecurringPatternID != nil && item.RecurringPatternID != nil && o.OccurrenceKey != nil && item.OccurrenceKey != nil &&
			*o.RecurringPatternID == *item.RecurringPatternID && *o.OccurrenceKey == *item.OccurrenceKey {
			return false, nil
		}
	}
	s.insertLocked(item)
	return true, nil
}

func (s *occurrenceStoreStub) insertLocked(item *models.ClassOccurrence) {
	if item.ID == "" {
		s.seq++
		item.ID = fmt.Sprintf("occ-%d", s.seq)
	}
	if item.Status == "" {
		item.Status = models.OccurrenceScheduled
	}
	item.ScheduledAt = item.ScheduledAt.UTC()
	s.items = append(s.items, *item)
}

func (s *occurrenceStoreStub) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[item.ID]; err != nil {
		return err
	}
	for i := range s.items {
		if s.items[i].ID == item.ID {
			s.items[i] = *item
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *occurrenceStoreStub) UpdateStatus(ctx context.Context, id string, status models.OccurrenceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *occurrenceStoreStub) byPattern(patternID string) []models.ClassOccurrence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClassOccurrence, 0)
	for _, o := range s.items {
		if o.RecurringPatternID != nil && *o.RecurringPatternID == patternID {
			out = append(out, o)
		}
	}
	return out
}

type notifierStub struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *notifierStub) Notify(ctx context.Context, note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (p *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}
