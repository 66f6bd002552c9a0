// Package task holds the to-do data model, the pure collection transitions,
// and the codec for the persisted task blob.
//
// The persisted blob is a bare JSON array of task objects, stored under the
// "tasks" key of the key-value gateway:
//
//	[
//	  {"id": 1718000000000, "title": "Buy milk", "completed": true},
//	  {"id": 1718000004211, "title": "Call Bob", "completed": false}
//	]
//
// # Validation
//
// Decode validates the blob against the embedded JSON Schema
// (tasks.schema.json, draft 2020-12) before it is unmarshaled, so a blob that
// is not an array of task-shaped records is rejected as a whole with a
// *ValidationError per offending location.
//
// # Ids
//
// Ids are Unix milliseconds taken at creation time. IDSource keeps them
// strictly increasing within a process, so two tasks created in the same
// clock tick still get distinct ids.
//
// # Filters
//
//   - all: every task
//   - completed: tasks with completed == true
//   - pending: tasks with completed == false
package task
