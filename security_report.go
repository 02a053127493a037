package magiclink

import "time"

// SecurityReport summarizes the security-relevant settings of a built Engine.
type SecurityReport struct {
	Realm                   string
	SigningAlgorithm        string
	KeyID                   string
	RotatedVerifyKeys       int
	ValidityWindow          time.Duration
	ClockSkew               time.Duration
	OpenRegistration        bool
	DomainPolicyActive      bool
	ExistingUsersRestricted bool
	MarksEmailVerified      bool
	MarkerStore             string
	AuditEnabled            bool
	MetricsEnabled          bool
	ActionTypes             []string
	LintFindings            []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	domainPolicy := e.config.Issue.AllowedDomainsGroup != ""
	algorithm := ""
	if e.codec != nil {
		algorithm = e.codec.Algorithm()
	}

	return SecurityReport{
		Realm:                   e.config.Realm.Name,
		SigningAlgorithm:        algorithm,
		KeyID:                   e.config.Token.KeyID,
		RotatedVerifyKeys:       len(e.config.Token.VerifyKeys),
		ValidityWindow:          e.config.Issue.ValidityWindow,
		ClockSkew:               e.config.Token.ClockSkew,
		OpenRegistration:        e.config.Issue.CreateUser,
		DomainPolicyActive:      domainPolicy,
		ExistingUsersRestricted: domainPolicy && e.config.Issue.RestrictExistingUsersToAllowedDomains,
		MarksEmailVerified:      e.config.Consume.MarkEmailVerified,
		MarkerStore:             e.markerStore,
		AuditEnabled:            e.config.Audit.Enabled,
		MetricsEnabled:          e.config.Metrics.Enabled,
		ActionTypes:             e.ActionTypes(),
		LintFindings:            e.config.Lint().Codes(),
	}
}
