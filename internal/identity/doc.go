// Package identity supplies the browser identity (User-Agent and cookie
// header) a crawl session presents. Identities come from snapshot files
// captured from a real mobile browser, tried in order, with an embedded
// identity as the last resort so that a session can always be opened.
//
// Snapshot format:
//
//	{"ua": "Mozilla/5.0 (iPhone; ...)", "cookies": [{"name": "NNB", "value": "..."}]}
package identity
