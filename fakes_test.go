package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// testMetrics is shared by every test; promauto registers on the default
// registry, so the metrics set must be created exactly once per test binary.
var testMetrics = NewMetrics()

// fakeStore is an in-memory Store
type fakeStore struct {
	mu         sync.Mutex
	accounts   map[string]*Account
	categories map[string][]Category
	emails     map[string]*Email
	receipts   map[string]time.Time

	upserted []Email
	removed  []string

	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[string]*Account),
		categories: make(map[string][]Category),
		emails:     make(map[string]*Email),
		receipts:   make(map[string]time.Time),
	}
}

func (s *fakeStore) addAccount(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.IdentityID] = &account
}

func (s *fakeStore) addEmail(email Email) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	s.emails[email.ID] = &email
}

// email returns a copy of a stored row, or nil
func (s *fakeStore) email(id string) *Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.emails[id]
	if !ok {
		return nil
	}
	copied := *stored
	return &copied
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserted)
}

func (s *fakeStore) removedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.removed)
}

func (s *fakeStore) GetAccountByIdentity(identityID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[identityID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", identityID)
	}
	copied := *account
	return &copied, nil
}

func (s *fakeStore) ListAccounts() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accounts []Account
	for _, account := range s.accounts {
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

func (s *fakeStore) GetUserCategories(userID string) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categories[userID], nil
}

func (s *fakeStore) GetEmailsByIDs(ids []string) ([]Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var emails []Email
	for _, id := range ids {
		if email, ok := s.emails[id]; ok && !email.DeletedAt.Valid {
			emails = append(emails, *email)
		}
	}
	return emails, nil
}

func (s *fakeStore) GetStoredGmailIDs(identityIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(identityIDs))
	for _, id := range identityIDs {
		wanted[id] = true
	}
	stored := make(map[string]bool)
	for _, email := range s.emails {
		if wanted[email.IdentityID] {
			stored[email.GmailID] = true
		}
	}
	return stored, nil
}

func (s *fakeStore) UpsertEmails(emails []Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	for _, email := range emails {
		var existing *Email
		for _, stored := range s.emails {
			if stored.GmailID == email.GmailID && stored.IdentityID == email.IdentityID {
				existing = stored
				break
			}
		}
		if existing != nil {
			existing.Sender = email.Sender
			existing.From = email.From
			existing.To = email.To
			existing.Subject = email.Subject
			existing.Preview = email.Preview
			existing.Content = email.Content
			existing.CategoryID = email.CategoryID
			existing.UnsubLink = email.UnsubLink
		} else {
			if email.ID == "" {
				email.ID = uuid.NewString()
			}
			copied := email
			s.emails[email.ID] = &copied
		}
		s.upserted = append(s.upserted, email)
	}
	return nil
}

func (s *fakeStore) MarkDeleted(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if email, ok := s.emails[id]; ok && !email.DeletedAt.Valid {
			email.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		}
	}
	return nil
}

func (s *fakeStore) ClearDeleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email, ok := s.emails[id]; ok {
		email.DeletedAt = gorm.DeletedAt{}
	}
	return nil
}

func (s *fakeStore) RemoveEmail(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.emails, id)
	s.removed = append(s.removed, id)
	return nil
}

func (s *fakeStore) AppendBotLog(id string, entry BotLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.emails[id]
	if !ok {
		return fmt.Errorf("email %s not found", id)
	}
	email.BotLog = append(email.BotLog, entry)
	return nil
}

func (s *fakeStore) ClearStaleDeleted(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var restored int64
	for _, email := range s.emails {
		if email.DeletedAt.Valid && email.DeletedAt.Time.Before(olderThan) {
			email.DeletedAt = gorm.DeletedAt{}
			restored++
		}
	}
	return restored, nil
}

func (s *fakeStore) ReserveReprocess(key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expires, ok := s.receipts[key]; ok && expires.After(now) {
		return false, nil
	}
	s.receipts[key] = now.Add(window)
	return true, nil
}

// fakeProvider is an in-memory MailProvider
type fakeProvider struct {
	mu       sync.Mutex
	inbox    []string
	messages map[string]*MailMessage

	listCalls int
	archived  []string
	trashed   []string

	getErr   map[string]error
	trashErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		messages: make(map[string]*MailMessage),
		getErr:   make(map[string]error),
	}
}

func (p *fakeProvider) addMessage(message *MailMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbox = append(p.inbox, message.ID)
	p.messages[message.ID] = message
}

func (p *fakeProvider) archivedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.archived...)
}

func (p *fakeProvider) trashedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.trashed...)
}

func (p *fakeProvider) listCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func (p *fakeProvider) ListInbox(ctx context.Context, max int64) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	out := append([]string(nil), p.inbox...)
	if int64(len(out)) > max {
		out = out[:max]
	}
	return out, nil
}

func (p *fakeProvider) GetMessage(ctx context.Context, id string) (*MailMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.getErr[id]; ok {
		return nil, err
	}
	message, ok := p.messages[id]
	if !ok {
		return nil, ErrMessageGone
	}
	return message, nil
}

func (p *fakeProvider) Archive(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archived = append(p.archived, id)
	return nil
}

func (p *fakeProvider) Trash(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trashErr != nil {
		return p.trashErr
	}
	p.trashed = append(p.trashed, id)
	return nil
}

func (p *fakeProvider) Close() error { return nil }

func fakeFactory(p *fakeProvider) ProviderFactory {
	return func(ctx context.Context, account *Account) (MailProvider, error) {
		return p, nil
	}
}

// fakeClassifier is a canned Classifier
type fakeClassifier struct {
	mu             sync.Mutex
	classification Classification
	classifyErr    error
	verdict        UnsubVerdict
	verifyErr      error

	classifiedSubjects []string
	verifiedRaw        []string
}

func (c *fakeClassifier) Classify(ctx context.Context, account *Account, subject, body string, categories []Category) (*Classification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classifiedSubjects = append(c.classifiedSubjects, subject)
	if c.classifyErr != nil {
		return nil, c.classifyErr
	}
	result := c.classification
	return &result, nil
}

func (c *fakeClassifier) VerifyUnsubscribe(ctx context.Context, raw string) (*UnsubVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifiedRaw = append(c.verifiedRaw, raw)
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	result := c.verdict
	return &result, nil
}

// fakeBrowser is a canned BrowserAutomator
type fakeBrowser struct {
	mu            sync.Mutex
	created       int
	ended         []string
	performResult string
	performErr    error
	createErr     error
	recordings    []string
	recordingsErr error
}

func (b *fakeBrowser) CreateSession(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.created++
	return fmt.Sprintf("session-%d", b.created), nil
}

func (b *fakeBrowser) PerformTask(ctx context.Context, sessionID, url, instruction string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.performErr != nil {
		return "", b.performErr
	}
	return b.performResult, nil
}

func (b *fakeBrowser) GetRecordings(ctx context.Context, sessionID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recordingsErr != nil {
		return nil, b.recordingsErr
	}
	return append([]string(nil), b.recordings...), nil
}

func (b *fakeBrowser) EndSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, sessionID)
	return nil
}

func (b *fakeBrowser) createdCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

func (b *fakeBrowser) endedSessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ended...)
}
