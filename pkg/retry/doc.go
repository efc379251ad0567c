// Package retry provides a small explicit retry policy for remote calls:
// bounded attempts, pluggable backoff with jitter, and an error classifier
// deciding what is worth retrying. It is applied uniformly at the
// collaborator-call boundary (the user directory, outbound alert webhooks)
// instead of ad hoc wrapping at each call site.
package retry
