// Package version holds build metadata used in user agents and the version command.
package version

import "fmt"

const Product = "tgpoll"

// Version is overridden at build time with -ldflags "-X tgpoll/pkg/version.Version=...".
var Version = "0.1.0-dev"

// UserAgent formats the User-Agent header value.
//
// Without a username it is "<product>/<version>"; once the bot identity is known
// it links the bot: "<product>/<version> (+https://t.me/<username>)".
func UserAgent(username string) string {
	if username == "" {
		return fmt.Sprintf("%s/%s", Product, Version)
	}

	return fmt.Sprintf("%s/%s (+https://t.me/%s)", Product, Version, username)
}
