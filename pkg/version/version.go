// Package version provides version information for the coin price engine.
package version

// Version is the current version of the coin price engine.
const Version = "0.4.0"

// AgentString returns the User-Agent sent to upstream price sources.
// Format: coin-community-prices/v{version}
func AgentString() string {
	return "coin-community-prices/v" + Version
}
