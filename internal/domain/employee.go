package domain

// Employee is the principal behind an NFC credential. Employee records are
// owned by the directory database; this service only reads them.
type Employee struct {
	EmpNo      string
	Name       string
	Email      string
	Department string
}

// Service is a relying service registered with the authorization server.
type Service struct {
	ClientID     string
	ClientSecret string
	Name         string
}
