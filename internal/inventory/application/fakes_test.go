package application

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

// fakeStore keeps aggregates in maps and commits the same way the pgx
// repository does: version-checked inventory writes, everything else
// applied together.
type fakeStore struct {
	inventories  map[int64]domain.Inventory
	reservations map[int64]domain.Reservation
	history      []domain.History
	events       []outbox.Event
	nextID       int64

	// conflictWrites fails that many inventory writes with ErrVersionConflict
	// before letting one through.
	conflictWrites int

	// beforeWrite runs ahead of each inventory write so a test can
	// interleave a concurrent actor.
	beforeWrite func()
}

func newFakeStore(inventories ...domain.Inventory) *fakeStore {
	s := &fakeStore{
		inventories:  map[int64]domain.Inventory{},
		reservations: map[int64]domain.Reservation{},
	}
	for _, inv := range inventories {
		s.inventories[inv.ID] = inv
	}
	return s
}

func (s *fakeStore) GetInventory(_ context.Context, id int64) (domain.Inventory, error) {
	inv, ok := s.inventories[id]
	if !ok {
		return domain.Inventory{}, &domain.NotFoundError{Entity: "inventory", Ref: strconv.FormatInt(id, 10)}
	}
	return inv, nil
}

func (s *fakeStore) GetInventoryByProduct(_ context.Context, productID string) (domain.Inventory, error) {
	for _, inv := range s.inventories {
		if inv.ProductID == productID {
			return inv, nil
		}
	}
	return domain.Inventory{}, &domain.NotFoundError{Entity: "inventory", Ref: productID}
}

func (s *fakeStore) GetReservation(_ context.Context, id int64) (domain.Reservation, error) {
	res, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, &domain.NotFoundError{Entity: "reservation", Ref: strconv.FormatInt(id, 10)}
	}
	return res, nil
}

func (s *fakeStore) FindReservation(_ context.Context, orderID string, inventoryID int64) (*domain.Reservation, error) {
	for _, res := range s.reservations {
		if res.OrderID == orderID && res.InventoryID == inventoryID {
			r := res
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) NextReservationID(_ context.Context) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) writeInventory(inv domain.Inventory) error {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	if s.conflictWrites > 0 {
		s.conflictWrites--
		return ErrVersionConflict
	}
	stored, ok := s.inventories[inv.ID]
	if !ok || stored.Version != inv.Version-1 {
		return ErrVersionConflict
	}
	s.inventories[inv.ID] = inv
	return nil
}

func (s *fakeStore) CreateReservationTx(_ context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error {
	if err := s.writeInventory(inv); err != nil {
		return err
	}
	s.reservations[res.ID] = res
	s.history = append(s.history, hist)
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeStore) FinalizeReservationTx(_ context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error {
	if err := s.writeInventory(inv); err != nil {
		return err
	}
	stored, ok := s.reservations[res.ID]
	if !ok || stored.Status != domain.ReservationActive {
		return ErrVersionConflict
	}
	s.reservations[res.ID] = res
	s.history = append(s.history, hist)
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeStore) AdjustInventoryTx(_ context.Context, inv domain.Inventory, hist domain.History) error {
	if err := s.writeInventory(inv); err != nil {
		return err
	}
	s.history = append(s.history, hist)
	return nil
}

func (s *fakeStore) EnqueueEvent(_ context.Context, evt outbox.Event) error {
	s.events = append(s.events, evt)
	return nil
}

func (s *fakeStore) eventsOfType(eventType string) []outbox.Event {
	var out []outbox.Event
	for _, evt := range s.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type indexEntry struct {
	member string
	score  int64
}

type fakeIndex struct {
	entries []indexEntry
	addErr  error
}

func (x *fakeIndex) Add(_ context.Context, reservationID int64, expiresAt time.Time) error {
	if x.addErr != nil {
		return x.addErr
	}
	x.entries = append(x.entries, indexEntry{member: strconv.FormatInt(reservationID, 10), score: expiresAt.Unix()})
	return nil
}

func (x *fakeIndex) Remove(_ context.Context, member string) error {
	for i, e := range x.entries {
		if e.member == member {
			x.entries = append(x.entries[:i], x.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (x *fakeIndex) Due(_ context.Context, now time.Time, limit int64) ([]string, error) {
	due := make([]indexEntry, 0, len(x.entries))
	for _, e := range x.entries {
		if e.score <= now.Unix() {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].score < due[j].score })
	if int64(len(due)) > limit {
		due = due[:limit]
	}
	members := make([]string, 0, len(due))
	for _, e := range due {
		members = append(members, e.member)
	}
	return members, nil
}

func (x *fakeIndex) members() []string {
	out := make([]string, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e.member)
	}
	sort.Strings(out)
	return out
}

type publishedCancel struct {
	reservationID int64
	reason        string
}

type fakePublisher struct {
	published []publishedCancel
	failFor   map[int64]error
}

func (p *fakePublisher) PublishCancel(_ context.Context, reservationID int64, reason string) error {
	if err := p.failFor[reservationID]; err != nil {
		return err
	}
	p.published = append(p.published, publishedCancel{reservationID: reservationID, reason: reason})
	return nil
}

type fakeLock struct {
	allow    bool
	acquires int
	releases int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	return l.allow, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.releases++
	return nil
}
