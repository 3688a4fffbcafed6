// Package policy evaluates Rego policies against resolved plans.
//
// Policies inspect the redacted plan document, so rules can reason about
// which descriptors exist and how they are wired without ever seeing secret
// material. Built-in policies cover common exposure mistakes; additional
// .rego or .json policy files can be loaded from disk and hot-reloaded.
package policy
