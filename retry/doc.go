/*
Package retry provides the bounded, classified retry policy applied to
every repository operation.

Errors are classified by kind before any retry decision. Validation,
permission and precondition failures fail immediately; unavailable,
deadline-exceeded, aborted and internal failures are re-attempted with
exponential backoff (base * 2^(attempt-1), no jitter) up to the
MaxRetries ceiling, after which the last error is surfaced unchanged.
*/
package retry
