// Package expr provides CEL (Common Expression Language) environments for
// prodmatch.
//
// Every [Environment] includes the standard CEL extensions plus:
//   - File event constants (fs.CREATE, fs.WRITE, fs.REMOVE, fs.RENAME, fs.CHMOD)
//     and the `has` macro for testing event flags, e.g. `fs.event.has(fs.WRITE)`.
//   - File path functions (pathBase, pathDir, pathExt).
//   - Document extraction (docPath), reading a value out of a JSON or YAML
//     file by path, e.g. `docPath(file, "$[0].category")`.
//
// Callers declare their own variables when creating an environment, such
// as `file` and `fs.event` for watch filters or `verdict` for classifiers.
package expr
