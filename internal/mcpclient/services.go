package mcpclient

import "strings"

// Service names one of the fixed MCP microservices.
type Service string

const (
	ServiceCore      Service = "core"
	ServiceDiagram   Service = "diagram"
	ServicePricing   Service = "pricing"
	ServiceDocs      Service = "awsdocs"
	ServiceCFN       Service = "cfn"
	ServiceCustomDoc Service = "customdoc"
)

// registry maps each service to its fixed path segment under the base URL.
// Order matters for Services() and health output.
var registry = []struct {
	service Service
	path    string
}{
	{ServiceCore, "/core"},
	{ServiceDiagram, "/diagram"},
	{ServicePricing, "/pricing"},
	{ServiceDocs, "/awsdocs"},
	{ServiceCFN, "/cfn"},
	{ServiceCustomDoc, "/customdoc"},
}

// Services returns every registered service in declaration order.
func Services() []Service {
	out := make([]Service, len(registry))
	for i, r := range registry {
		out[i] = r.service
	}
	return out
}

// Lookup resolves a service name. Matching is exact; callers must not rely on
// case folding.
func Lookup(name string) (Service, bool) {
	for _, r := range registry {
		if string(r.service) == name {
			return r.service, true
		}
	}
	return "", false
}

// Path returns the fixed path segment of s, or "" for an unregistered service.
func (s Service) Path() string {
	for _, r := range registry {
		if r.service == s {
			return r.path
		}
	}
	return ""
}

// URL builds base + service path + "/" + endpoint by plain concatenation.
func URL(base string, s Service, endpoint string) string {
	return strings.TrimRight(base, "/") + s.Path() + "/" + strings.TrimLeft(endpoint, "/")
}
