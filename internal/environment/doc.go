// Package environment detects which environment the process is running in
// and resolves per-environment service configuration.
//
// # Detection
//
// The Detector weighs three kinds of evidence:
//
//   - An explicit override variable (READYCHECK_ENVIRONMENT by default)
//   - Cloud Run identity: metadata-server attributes, falling back to the
//     K_SERVICE / K_REVISION / GOOGLE_CLOUD_PROJECT variables
//   - Naming conventions on service and project names ("-staging", "-prod")
//
// Evidence is combined into a confidence score between 0 and 1. An explicit
// variable anchors the score high; agreeing signals raise it further, and
// ambiguous evidence resolves toward the stricter environment. With no
// evidence at all, detection falls back to development at low confidence —
// it never guesses a remote environment.
//
// # Fail-fast Context
//
// ContextService holds the detected Context for the rest of the process.
// Accessors called before Initialize return ErrNotInitialized rather than a
// default: a component probing localhost because detection silently
// defaulted is exactly the failure this package exists to prevent. The same
// invariant is enforced structurally — staging and production service URLs
// must never resolve to loopback hosts.
package environment
