package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		publicEndpointPolicy(),
		cdnWithoutWAFPolicy(),
		emptyAllowListPolicy(),
		shortLogRetentionPolicy(),
	}
}

// publicEndpointPolicy flags an unauthenticated endpoint with nothing in
// front of it.
func publicEndpointPolicy() Policy {
	return Policy{
		Name:        "public-endpoint",
		Description: "Flags an unauthenticated function endpoint that is not fronted by a CDN distribution",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"exposure"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfacade.policies.exposure

import rego.v1

deny contains violation if {
	some endpoint in input.plan.descriptors
	endpoint.kind == "function_endpoint"
	endpoint.properties.auth_mode == "NONE"

	not has_cdn

	violation := {
		"message": sprintf("endpoint %s accepts unauthenticated requests and is not fronted by a CDN", [endpoint.id]),
		"severity": "warning",
		"descriptor": endpoint.id,
		"remediation": "enable the CDN distribution or switch to IAM endpoint auth",
	}
}

has_cdn if {
	some d in input.plan.descriptors
	d.kind == "cdn"
}
`,
	}
}

// cdnWithoutWAFPolicy flags a distribution without a web ACL.
func cdnWithoutWAFPolicy() Policy {
	return Policy{
		Name:        "cdn-without-waf",
		Description: "Flags a CDN distribution that has no web ACL attached",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"exposure"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfacade.policies.waf

import rego.v1

deny contains violation if {
	some cdn in input.plan.descriptors
	cdn.kind == "cdn"
	not cdn.properties.web_acl_ref

	violation := {
		"message": sprintf("distribution %s has no web ACL attached", [cdn.id]),
		"severity": "warning",
		"descriptor": cdn.id,
		"remediation": "enable the WAF to restrict distribution access to allow-listed ranges",
	}
}
`,
	}
}

// emptyAllowListPolicy blocks a web ACL whose allow-list admits nothing. The
// default action is block, so an empty list means the distribution rejects
// every request.
func emptyAllowListPolicy() Policy {
	return Policy{
		Name:        "empty-allow-list",
		Description: "Blocks plans whose IP allow-list is empty; the web ACL default action would reject all traffic",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"availability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfacade.policies.allowlist

import rego.v1

deny contains violation if {
	some list in input.plan.descriptors
	list.kind == "ip_allow_list"
	count(list.properties.cidrs) == 0

	violation := {
		"message": sprintf("allow-list %s admits no ranges; the web ACL would block all traffic", [list.id]),
		"severity": "error",
		"descriptor": list.id,
		"remediation": "add caller CIDR ranges or rely on the service reference list",
	}
}
`,
	}
}

// shortLogRetentionPolicy flags retention windows too short for incident
// review.
func shortLogRetentionPolicy() Policy {
	return Policy{
		Name:        "short-log-retention",
		Description: "Flags log sinks retaining fewer than 7 days of logs",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"observability"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package openfacade.policies.retention

import rego.v1

deny contains violation if {
	some sink in input.plan.descriptors
	sink.kind == "log_sink"
	sink.properties.retention_days < 7

	violation := {
		"message": sprintf("log sink %s retains only %d days of logs", [sink.id, sink.properties.retention_days]),
		"severity": "warning",
		"descriptor": sink.id,
		"remediation": "retain at least 7 days so incidents can be reviewed",
	}
}
`,
	}
}
