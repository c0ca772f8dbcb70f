package security

// DefaultCapabilityBundles maps capability names to the endpoints they need.
var DefaultCapabilityBundles = map[string][]string{
	"oidc": {
		"fulcio.sigstore.dev:443",
		"rekor.sigstore.dev:443",
		"tuf-repo-cdn.sigstore.dev:443",
		"*.actions.githubusercontent.com:443",
	},
	"testpypi": {"test.pypi.org:443"},
	"pypi":     {"upload.pypi.org:443", "pypi.org:443"},
	"ghcr":     {"ghcr.io:443", "pkg-containers.githubusercontent.com:443"},
	"github-artifacts": {
		"api.github.com:443",
		"results-receiver.actions.githubusercontent.com:443",
		"*.blob.core.windows.net:443",
	},
}

// ResolveCapabilities returns a deduplicated list of endpoints for the given capability names.
func ResolveCapabilities(capabilities []string) []string {
	seen := make(map[string]bool)
	var endpoints []string
	for _, c := range capabilities {
		for _, e := range DefaultCapabilityBundles[c] {
			if !seen[e] {
				seen[e] = true
				endpoints = append(endpoints, e)
			}
		}
	}
	return endpoints
}
