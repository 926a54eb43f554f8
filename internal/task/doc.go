// Package task runs detached background jobs. Jobs are JSON messages carried
// by an in-memory, Redis or RabbitMQ queue and dispatched by kind to handlers
// registered on a Processor, which retries retryable failures up to a bound
// and raises alerts for the rest.
package task
