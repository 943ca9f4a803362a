/*
Package health implements the Checker/Result/Status state machine used
for two things in gaggle: startup preflight checks and worker liveness
tracking.

# Checkers

HTTPChecker and TCPChecker both implement Checker (Check(ctx) Result,
Type() CheckType). cmd/gaggle uses them once at startup: HTTPChecker
probes --host before hatching any users, and the worker subcommand
probes the manager's bind address before dialing gRPC. Both checks are
warn-only -- an unreachable target at startup doesn't abort the run,
since it may come up once load begins.

# Status

Status tracks ConsecutiveFailures/ConsecutiveSuccesses and flips
Healthy only after Config.Retries consecutive failures, preventing a
single slow check from flapping the result. pkg/gaggle's Manager uses
this to track connected workers: each missed metrics push (rather than
an active Checker dial, since workers call in rather than accept
connections) feeds a synthetic Result into the worker's Status.
*/
package health
