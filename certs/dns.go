package certs

import "context"

// DNSChallengeRecord is the TXT record a dns-01 challenge must publish to
// prove control of a domain.
type DNSChallengeRecord struct {
	// Domain is the base domain being validated.
	Domain string
	// FQDN is the fully-qualified record name, e.g. _acme-challenge.example.com.
	FQDN string
	// Value is the TXT record value the CA expects to resolve.
	Value string
}

// DNSChallengeHook publishes and retracts the TXT record a dns-01 challenge
// requires. A DNS Credential Profile's provider (e.g. an ACME-DNS helper)
// implements this to let https-acme mode issue wildcard certificates.
type DNSChallengeHook interface {
	// Present publishes record so the CA can resolve it before accepting
	// the challenge.
	Present(ctx context.Context, record DNSChallengeRecord) error

	// Cleanup retracts record after the challenge completes, successfully
	// or not.
	Cleanup(ctx context.Context, record DNSChallengeRecord) error
}
