package flows

import (
	"context"
	"fmt"
	"strings"
)

// DomainPolicy names the group whose allowed-domains attribute gates
// automatic provisioning. An empty group disables auto-provisioning.
type DomainPolicy struct {
	AllowedDomainsGroup string
}

// Enabled reports whether an allow-list group is configured.
func (p DomainPolicy) Enabled() bool {
	return strings.TrimSpace(p.AllowedDomainsGroup) != ""
}

// GroupDomainsLookup returns the allowed-domains attribute of a group.
type GroupDomainsLookup func(ctx context.Context, groupName string) ([]string, error)

// EmailDomain returns the lowercased text after the first '@', or "".
func EmailDomain(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// IsAutoProvisionAllowed reports whether email's domain is listed in the
// policy group. It returns false whenever the answer cannot be established;
// the error, if any, explains why and is meant for logging only.
func IsAutoProvisionAllowed(ctx context.Context, policy DomainPolicy, lookup GroupDomainsLookup, email string) (bool, error) {
	if !policy.Enabled() {
		return false, nil
	}
	domain := EmailDomain(email)
	if domain == "" {
		return false, nil
	}
	if lookup == nil {
		return false, fmt.Errorf("allowed-domains group %q: no group directory", policy.AllowedDomainsGroup)
	}

	allowed, err := lookup(ctx, strings.TrimSpace(policy.AllowedDomainsGroup))
	if err != nil {
		return false, fmt.Errorf("allowed-domains group %q: %w", policy.AllowedDomainsGroup, err)
	}
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), domain) {
			return true, nil
		}
	}
	return false, nil
}
