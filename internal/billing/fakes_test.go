package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/models"
)

// fakeClient is an in-memory ProviderClient with per-subscription canned
// responses and a call counter, so tests can assert exactly when the
// provider is (and is not) consulted.
type fakeClient struct {
	mu        sync.Mutex
	snapshots map[string]*ProviderSnapshot
	errs      map[string]error
	calls     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		snapshots: make(map[string]*ProviderSnapshot),
		errs:      make(map[string]error),
	}
}

func (c *fakeClient) Retrieve(_ context.Context, externalID string) (*ProviderSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if err, ok := c.errs[externalID]; ok {
		return nil, err
	}
	if snap, ok := c.snapshots[externalID]; ok {
		copied := *snap
		return &copied, nil
	}
	return nil, ErrProviderNotFound
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeStore is an in-memory Store. Reads hand out copies so tests can't
// accidentally mutate stored state without going through an update method.
type fakeStore struct {
	mu           sync.Mutex
	subs         map[int64]*models.Subscription
	companies    map[int64]*models.Company
	companyUsers map[int64][]int64

	statusWrites int
	dueWrites    int

	// Injectable failures.
	getCompanyErr      error
	getByCompanyErr    error
	updateStatusErrFor map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:               make(map[int64]*models.Subscription),
		companies:          make(map[int64]*models.Company),
		companyUsers:       make(map[int64][]int64),
		updateStatusErrFor: make(map[int64]error),
	}
}

func (s *fakeStore) putSubscription(sub *models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sub
	s.subs[sub.ID] = &copied
}

func (s *fakeStore) getSubscription(id int64) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.subs[id]
	return &copied
}

func (s *fakeStore) statusWriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusWrites
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeStore) GetByCompany(_ context.Context, companyID int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getByCompanyErr != nil {
		return nil, s.getByCompanyErr
	}
	for _, sub := range s.subs {
		if sub.CompanyID == companyID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *fakeStore) UpdateStatus(_ context.Context, id int64, status models.SubscriptionStatus, endDate *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateStatusErrFor[id]; err != nil {
		return err
	}
	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.statusWrites++
	sub.Status = status
	sub.EndDate = endDate
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) UpdateNextDueDate(_ context.Context, id int64, nextDueDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	s.dueWrites++
	due := nextDueDate
	sub.NextDueDate = &due
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) ListActiveExternal(_ context.Context) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == models.StatusActive && sub.ExternalSubscriptionID != nil {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *fakeStore) ListActiveDueBefore(_ context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == models.StatusActive && sub.NextDueDate != nil && sub.NextDueDate.Before(cutoff) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *fakeStore) ListOverdueDueBefore(_ context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == models.StatusOverdue && sub.NextDueDate != nil && sub.NextDueDate.Before(cutoff) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *fakeStore) GetCompany(_ context.Context, companyID int64) (*models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getCompanyErr != nil {
		return nil, s.getCompanyErr
	}
	company, ok := s.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	copied := *company
	return &copied, nil
}

func (s *fakeStore) ListCompanyUserIDs(_ context.Context, companyID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.companyUsers[companyID]...), nil
}

func sortByID(subs []*models.Subscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
}

// fakeNotifier records every notification.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	UserID   int64
	Title    string
	Severity string
}

func (n *fakeNotifier) Notify(_ context.Context, userID int64, title, _ string, severity string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Title: title, Severity: severity})
	return nil
}

func (n *fakeNotifier) sentTo() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

// Test fixture helpers.

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
