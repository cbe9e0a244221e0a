/*
Package domain contains the core domain models of the arbor engine.

It defines the fundamental entities of an application graph and is kept free
of I/O and persistence concerns, following Hexagonal Architecture principles.

# Key Entities

  - State: immutable field container; every write returns a new State.
  - Action: named unit of work declaring the fields it reads and writes.
  - Condition: predicate guarding a Transition (Default, When, Exists, Expr, Func).
  - Transition: a conditional edge between two actions.
  - Record: the persisted snapshot of an application after a step.
  - LifecycleHooks: pre/post step observers.
*/
package domain
