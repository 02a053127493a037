// Package notify delivers magic links.
//
// Three [magiclink.Notifier] implementations are provided:
//
//   - [SMTPNotifier] sends a multipart text/HTML message through an SMTP relay.
//   - [PostmarkNotifier] sends through the Postmark transactional API.
//   - [LogNotifier] logs delivery metadata for development. It never logs the link.
//
// Message bodies are rendered by [Templates]. The link is a bearer credential:
// notifiers log the token fingerprint, never the link itself.
package notify
