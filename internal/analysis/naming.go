package analysis

import "strings"

// DefaultEmailDomain is the mail domain used when none is configured.
const DefaultEmailDomain = "kiwitech.com"

// EmailPolicy derives a developer's email address from their display name.
type EmailPolicy interface {
	Email(displayName string) string
}

// DomainEmailPolicy lowercases the name, turns spaces into dots and appends a domain.
type DomainEmailPolicy struct {
	Domain string
}

// NewDomainEmailPolicy creates a policy for domain, falling back to DefaultEmailDomain.
func NewDomainEmailPolicy(domain string) DomainEmailPolicy {
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")
	if domain == "" {
		domain = DefaultEmailDomain
	}
	return DomainEmailPolicy{Domain: domain}
}

func (p DomainEmailPolicy) Email(displayName string) string {
	local := strings.ReplaceAll(strings.ToLower(displayName), " ", ".")
	return local + "@" + p.Domain
}

// EmailFunc adapts a plain function to EmailPolicy.
type EmailFunc func(displayName string) string

func (f EmailFunc) Email(displayName string) string { return f(displayName) }
