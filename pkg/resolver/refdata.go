package resolver

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// defaultGitHubCIDRs is the compiled-in snapshot of the GitHub service IP
// ranges admitted through the web ACL so CI-triggered smoke checks reach the
// endpoint. The list is reference data, not policy: it changes over time and
// can be replaced wholesale via LoadGitHubCIDRs without a code change.
var defaultGitHubCIDRs = []string{
	"192.30.252.0/22",
	"185.199.108.0/22",
	"140.82.112.0/20",
	"143.55.64.0/20",
	"20.201.28.151/32",
	"20.205.243.166/32",
	"20.87.245.0/32",
	"20.248.137.48/32",
	"20.207.73.82/32",
	"20.27.177.113/32",
	"20.200.245.247/32",
	"20.175.192.147/32",
	"20.233.83.145/32",
	"20.29.134.23/32",
	"20.199.39.232/32",
	"20.217.135.5/32",
	"4.237.22.38/32",
}

// DefaultGitHubCIDRs returns a copy of the compiled-in GitHub CIDR list.
func DefaultGitHubCIDRs() []string {
	out := make([]string, len(defaultGitHubCIDRs))
	copy(out, defaultGitHubCIDRs)
	return out
}

// LoadGitHubCIDRs reads a replacement reference list from a JSON file
// containing an array of CIDR strings.
func LoadGitHubCIDRs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference CIDR file: %w", err)
	}

	var cidrs []string
	if err := json.Unmarshal(data, &cidrs); err != nil {
		return nil, fmt.Errorf("failed to parse reference CIDR file %s: %w", path, err)
	}
	if len(cidrs) == 0 {
		return nil, fmt.Errorf("reference CIDR file %s is empty", path)
	}

	for _, c := range cidrs {
		if _, _, err := net.ParseCIDR(c); err != nil {
			return nil, fmt.Errorf("invalid CIDR %q in %s: %w", c, path, err)
		}
	}
	return cidrs, nil
}
