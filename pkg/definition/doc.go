/*
Package definition loads saga definitions from YAML or JSON files.

A definition file names the saga, its initial state and its ordered steps.
Actions are referenced by name and resolved through a Registry, which holds
in-process actions and, optionally, allow-listed local commands:

	name: order
	initial: start
	steps:
	  - name: reserve
	    destination: inventory.commands
	    action: reserve
	    compensate: { command: release }
	    retry: { max_attempts: 5, backoff: { kind: fixed, delay: 1s } }
	    timeout: 10s

Without a "transitions" block the saga table is the linear chain of steps.
*/
package definition
