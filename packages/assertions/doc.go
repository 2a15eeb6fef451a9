// Package assertions checks hitwire responses against expectations.
//
// An assertion is written as "<subject> <operator> [expected]":
//   - status == 200
//   - header Content-Type contains application/json
//   - body.data.id exists
//   - body.items length 3
//   - reused == true
//   - body schema ./user.schema.json
//
// Subjects are status, duration, reused, header <name>, body and JSON
// paths below body. Whole-body JSON Schema validation is also available
// through ValidateSchema.
package assertions
