// Package model defines the provider-agnostic abstractions and concrete
// helpers for issuing generation calls against language models inside the
// evaluation pipeline.
//
// Core goals:
//   - One narrow Runner interface: rendered prompt in, text + token accounting out
//   - Typed transient/permanent failure classification for retry decisions
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockRunner)
//
// Providers (e.g. OpenAI, Anthropic) implement the Runner interface from this
// package so higher layers (orchestrator, metric stages) remain decoupled
// from vendor SDKs.
package model
