// Package cli provides the backoffice-cli command-line client for the fund
// back-office API.
//
// # Overview
//
// The CLI talks to the back-office REST API directly, without the gateway.
// Each invocation restores the login saved by the previous one, so commands
// behave like successive page loads of the dashboard: the same session
// state machine, route generation and user editor run in process.
//
// # Commands
//
// login: Authenticate and save the token
//
//	backoffice-cli --backend https://api.example login -u ana@fund.example
//
// logout, whoami: End or inspect the saved session
//
//	backoffice-cli whoami --json
//
// routes: List the pages the user may open
//
//	backoffice-cli routes --menu
//
// page: Fetch the data behind a page for a fund and class
//
//	backoffice-cli page /cotas/cotas \
//		--fund "FIDC A" \
//		--class senior \
//		--param inicio=2024-01-01
//
// user: Administer users (requires edit on the users page)
//
//	backoffice-cli user show 7
//	backoffice-cli user edit 7 --toggle /cotas/cotas --class "FIDC A/senior" --dry-run
//	backoffice-cli user create --name Bia --surname Reis --email bia@fund.example --password s3cret
//	backoffice-cli user find --cpf 123.456.789-01
//	backoffice-cli user delete 7 --yes
//
// # Configuration
//
// Global flags default to the environment:
//
//	export BACKOFFICE_BACKEND_URL="https://api.example"
//	export BACKOFFICE_TOKEN_DIR="$HOME/.config/backoffice"
//	export BACKOFFICE_CATALOG_PATH="./catalog.yaml"
//
// BACKOFFICE_PASSWORD supplies the login password non-interactively.
//
// # Related Packages
//
//   - pkg/session: Session state and the token file
//   - pkg/routes: Route table generation
//   - pkg/editor: User editing
package cli
