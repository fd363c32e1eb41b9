// Package manager orchestrates the panel's two collaborators: the
// configuration store for persisted per-model defaults and the upstream
// gateway for the inference server's REST API. Every operation maps to one
// user action on the panel page.
package manager
