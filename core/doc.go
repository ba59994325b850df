// Package core contains the verification domain: results, constraints, the
// response parser, the constraint evaluator and the Verifier orchestrator.
// Transport implementations live in sibling packages and depend on core; core
// must not depend on any concrete transport.
package core
