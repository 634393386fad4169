package version

import (
	"fmt"
	"github.com/relayforge/relayforge/theme"
	"log"
	"strings"
)

var (
	Name        = "relayforged"
	Authors     = "relayforge contributors"
	Description = "Outbound relay proxy for sandboxed data source providers"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/relayforge/relayforge"
	GithubHomeUri   = "https://github.com/relayforge/relayforge"
	GithubLatestUri = "https://github.com/relayforge/relayforge/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)

	var b strings.Builder

	b.WriteString(theme.ColourSplash(fmt.Sprintf("%s - %s\n", Name, Description)))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(" ")
	b.WriteString(theme.ColourVersion(latestUri))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
