// Package api contains the HTTP transport layer: request/response models,
// handlers, and the mapping from domain and service errors to status
// codes. Handlers stay thin; orchestration lives in the service package.
package api
