package service_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/notify"
)

// In-memory doubles of the Redis stores and the directory, enough to drive
// the services through complete flows without a server.

type memAttempts struct {
	records map[string]domain.AuthAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{records: map[string]domain.AuthAttempt{}}
}

func (m *memAttempts) Put(ctx context.Context, id string, attempt domain.AuthAttempt, ttl time.Duration) error {
	attempt.SchemaVersion = domain.AttemptSchemaVersion
	m.records[id] = attempt
	return nil
}

func (m *memAttempts) Get(ctx context.Context, id string) (domain.AuthAttempt, error) {
	attempt, ok := m.records[id]
	if !ok {
		return domain.AuthAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (m *memAttempts) Delete(ctx context.Context, id string) error {
	delete(m.records, id)
	return nil
}

func (m *memAttempts) UpdateTerminal(ctx context.Context, id string, mutate func(*domain.AuthAttempt)) (domain.AuthAttempt, error) {
	attempt, ok := m.records[id]
	if !ok {
		return domain.AuthAttempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptPending {
		return domain.AuthAttempt{}, domain.ErrAttemptNotPending
	}
	mutate(&attempt)
	attempt.ServerPrivateKey = ""
	m.records[id] = attempt
	return attempt, nil
}

type memCodes struct {
	records map[string]domain.AuthorizationCode
}

func newMemCodes() *memCodes {
	return &memCodes{records: map[string]domain.AuthorizationCode{}}
}

func (m *memCodes) Put(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error {
	code.SchemaVersion = domain.CodeSchemaVersion
	m.records[code.Code] = code
	return nil
}

func (m *memCodes) Get(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	stored, ok := m.records[code]
	if !ok {
		return domain.AuthorizationCode{}, domain.ErrCodeNotFound
	}
	return stored, nil
}

func (m *memCodes) Take(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	stored, ok := m.records[code]
	if !ok {
		return domain.AuthorizationCode{}, domain.ErrCodeNotFound
	}
	delete(m.records, code)
	return stored, nil
}

type memSessions struct {
	empNos map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{empNos: map[string]string{}}
}

func (m *memSessions) Put(ctx context.Context, sessionID, empNo string, ttl time.Duration) error {
	m.empNos[sessionID] = empNo
	return nil
}

func (m *memSessions) EmpNo(ctx context.Context, sessionID string) (string, error) {
	empNo, ok := m.empNos[sessionID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return empNo, nil
}

func (m *memSessions) Extend(ctx context.Context, sessionID string, ttl time.Duration) error {
	if _, ok := m.empNos[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (m *memSessions) Delete(ctx context.Context, sessionID string) error {
	delete(m.empNos, sessionID)
	return nil
}

type memRefresh struct {
	tokens map[string]string
	ttls   map[string]time.Duration
}

func newMemRefresh() *memRefresh {
	return &memRefresh{tokens: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRefresh) Put(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	m.tokens[sessionID] = token
	m.ttls[sessionID] = ttl
	return nil
}

func (m *memRefresh) Get(ctx context.Context, sessionID string) (string, error) {
	token, ok := m.tokens[sessionID]
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return token, nil
}

func (m *memRefresh) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ttl, ok := m.ttls[sessionID]
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	return ttl, nil
}

func (m *memRefresh) Replace(ctx context.Context, sessionID, token string) error {
	if _, ok := m.tokens[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	m.tokens[sessionID] = token
	return nil
}

func (m *memRefresh) Delete(ctx context.Context, sessionID string) error {
	delete(m.tokens, sessionID)
	delete(m.ttls, sessionID)
	return nil
}

type memBlacklist struct {
	revoked map[string]bool
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{revoked: map[string]bool{}}
}

func (m *memBlacklist) Add(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	m.revoked[token] = true
	return nil
}

func (m *memBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	return m.revoked[token], nil
}

type memDirectory struct {
	employees map[string]domain.Employee
	cardKeys  map[string][]byte
	services  map[string]domain.Service
	redirects map[string]string
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		employees: map[string]domain.Employee{},
		cardKeys:  map[string][]byte{},
		services:  map[string]domain.Service{},
		redirects: map[string]string{},
	}
}

func (m *memDirectory) EmployeeByNumber(ctx context.Context, empNo string) (domain.Employee, error) {
	emp, ok := m.employees[empNo]
	if !ok {
		return domain.Employee{}, pgx.ErrNoRows
	}
	return emp, nil
}

func (m *memDirectory) PublicKeyByEmployee(ctx context.Context, empNo string) ([]byte, error) {
	key, ok := m.cardKeys[empNo]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return key, nil
}

func (m *memDirectory) ServiceByClientID(ctx context.Context, clientID string) (domain.Service, error) {
	svc, ok := m.services[clientID]
	if !ok {
		return domain.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (m *memDirectory) ServiceByClientAndRedirect(ctx context.Context, clientID, redirectURI string) (domain.Service, error) {
	svc, ok := m.services[clientID]
	if !ok || m.redirects[clientID] != redirectURI {
		return domain.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

type fakeDispatcher struct {
	sent []notify.ChallengeMessage
	err  error
}

func (d *fakeDispatcher) Send(ctx context.Context, msg notify.ChallengeMessage) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}
