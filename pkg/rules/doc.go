// Package rules provides ports.RuleEvaluator implementations that veto saga steps.
//
// Rules are consulted once per step before its forward action runs. A Deny
// decision fails the step fatally and starts compensation.
package rules
