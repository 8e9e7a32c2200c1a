/*
Package cache provides the proxy runtime's short-lived, in-process memoization
cache: the API-key hash lookup and the security policy document are both
re-read from the repository on every request unless a cached copy is still
within its TTL (memoized for a few seconds, shared read-mostly).

FLM is a local-first, single-process gateway with no clustering, so the
cache is a plain in-memory map rather than a shared broker: there is never
a second process to keep in sync with.

# Core types

  - Manager: holds keyed entries with per-entry expiry, exposes Get/Set/
    GetJSON/SetJSON/Delete/Exists/Expire/Close — the same surface shape the
    rest of the codebase already expects from a cache manager.
  - Config: default TTL and sweep interval.
*/
package cache
