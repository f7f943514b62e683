// Package uploader delivers built artifacts through Apple's command-line
// tools, run via xcrun: altool and iTMSTransporter. Both authenticate with
// the team's API key; the key directory is handed over in
// API_PRIVATE_KEYS_DIR so nothing is copied into the user's home.
//
// Tool failures are classified for the upload manager: rejected
// credentials map to ports.ErrUnauthorized, duplicates to ports.ErrConflict,
// everything else from a tool that ran to ports.ErrTransient.
package uploader
