// Command devrank extracts JIRA issues, ranks developers and serves the dashboard API.
//
//	@title						JIRA Developer Ranking API
//	@version					1.0
//	@description				Dashboard data for the JIRA developer productivity ranking.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import "github.com/ZanzyTHEbar/jira-dev-ranking/internal/cli"

var version = "dev"

func main() {
	cli.Run(version)
}
