/*
Package domain contains the core domain models of the saga orchestrator.

It defines the saga record, its steps and definitions, the lifecycle and
transaction tables, the events emitted while a saga runs and the values
exchanged with the rule and routing collaborators. This package is kept pure
and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Definition: an ordered list of Steps plus the transition table they drive.
  - Step: a forward Action, an optional compensating Action and a retry policy.
  - Saga: the durable record of one running or finished saga instance.
  - Status: the saga lifecycle, governed by LifecycleTable.
  - Envelope: an Output addressed to a destination, handed to the router.
*/
package domain
