package directory

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// Compile-time interface assertions.
var (
	_ EmployeeDirectory = (*PostgresDirectory)(nil)
	_ ServiceDirectory  = (*PostgresDirectory)(nil)
)

// PostgresDirectory implements the directory lookups against the shared
// corporate database.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: pool}
}

const employeeByNumberSQL = `SELECT emp_no, name, email, department
FROM employees WHERE emp_no = $1`

func (d *PostgresDirectory) EmployeeByNumber(ctx context.Context, empNo string) (domain.Employee, error) {
	var emp domain.Employee
	row := d.db.QueryRow(ctx, employeeByNumberSQL, empNo)
	if err := row.Scan(&emp.EmpNo, &emp.Name, &emp.Email, &emp.Department); err != nil {
		return domain.Employee{}, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

const publicKeyByEmployeeSQL = `SELECT pubkey FROM card_pubkeys WHERE emp_no = $1`

func (d *PostgresDirectory) PublicKeyByEmployee(ctx context.Context, empNo string) ([]byte, error) {
	var pubkeyHex string
	row := d.db.QueryRow(ctx, publicKeyByEmployeeSQL, empNo)
	if err := row.Scan(&pubkeyHex); err != nil {
		return nil, fmt.Errorf("get card pubkey: %w", err)
	}
	pubkey, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode card pubkey: %w", err)
	}
	return pubkey, nil
}

const serviceByClientIDSQL = `SELECT client_id, client_secret, name
FROM services WHERE client_id = $1`

func (d *PostgresDirectory) ServiceByClientID(ctx context.Context, clientID string) (domain.Service, error) {
	var svc domain.Service
	row := d.db.QueryRow(ctx, serviceByClientIDSQL, clientID)
	if err := row.Scan(&svc.ClientID, &svc.ClientSecret, &svc.Name); err != nil {
		return domain.Service{}, fmt.Errorf("get service: %w", err)
	}
	return svc, nil
}

const serviceByClientAndRedirectSQL = `SELECT s.client_id, s.client_secret, s.name
FROM services s JOIN redirect_uris r ON s.client_id = r.client_id
WHERE s.client_id = $1 AND r.uri = $2`

func (d *PostgresDirectory) ServiceByClientAndRedirect(ctx context.Context, clientID, redirectURI string) (domain.Service, error) {
	var svc domain.Service
	row := d.db.QueryRow(ctx, serviceByClientAndRedirectSQL, clientID, redirectURI)
	if err := row.Scan(&svc.ClientID, &svc.ClientSecret, &svc.Name); err != nil {
		return domain.Service{}, fmt.Errorf("get service by redirect: %w", err)
	}
	return svc, nil
}
