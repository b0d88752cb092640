// Package schema describes the shape of a saga's initial context.
//
// A Schema maps context keys to types written as strings, the same form used
// in definition files:
//
//	context:
//	  order_id: string
//	  amount: int
//	  items: "[string]"
//	  note: "string?"   # optional
//
// Supported types are string, int, float, bool, map, any and slices written
// as [T]. A trailing "?" makes the key optional. Numbers decoded from JSON
// arrive as float64; int accepts them when they are whole.
package schema
