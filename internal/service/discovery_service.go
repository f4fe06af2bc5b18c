package service

import "fmt"

// DiscoveryService builds the OIDC-shaped discovery document from the
// request's scheme and host, so the same binary serves any deployment name.
type DiscoveryService struct{}

// OpenIDConfiguration matches the OIDC discovery document layout.
type OpenIDConfiguration struct {
	Issuer                   string   `json:"issuer"`
	AuthorizationEndpoint    string   `json:"authorization_endpoint"`
	TokenEndpoint            string   `json:"token_endpoint"`
	UserinfoEndpoint         string   `json:"userinfo_endpoint"`
	RevocationEndpoint       string   `json:"revocation_endpoint"`
	ResponseTypesSupported   []string `json:"response_types_supported"`
	GrantTypesSupported      []string `json:"grant_types_supported"`
	SubjectTypesSupported    []string `json:"subject_types_supported"`
	TokenEndpointAuthMethods []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported          []string `json:"claims_supported"`
}

// OpenIDConfigurationResponse builds the document for the given request base.
func (s *DiscoveryService) OpenIDConfigurationResponse(scheme, host string) OpenIDConfiguration {
	issuer := fmt.Sprintf("%s://%s", scheme, host)
	return OpenIDConfiguration{
		Issuer:                   issuer,
		AuthorizationEndpoint:    fmt.Sprintf("%s/api/v1/authorize", issuer),
		TokenEndpoint:            fmt.Sprintf("%s/api/v1/token", issuer),
		UserinfoEndpoint:         fmt.Sprintf("%s/api/v1/userinfo", issuer),
		RevocationEndpoint:       fmt.Sprintf("%s/api/v1/logout", issuer),
		ResponseTypesSupported:   []string{"code"},
		GrantTypesSupported:      []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:    []string{"public"},
		TokenEndpointAuthMethods: []string{"client_secret_post"},
		ClaimsSupported:          []string{"sub", "emp_no", "name", "email"},
	}
}
