// Package matching decides whether an inbound request satisfies a
// request matcher.
//
// A matcher is a partial template: every field it sets must agree with the
// request and every field it leaves empty matches anything. Supported
// criteria:
//
//   - Method: case-insensitive comparison
//   - Path: exact, {name} segments, * wildcards, ** globs, or a regex pattern
//   - Headers: exact values or * prefix/suffix/contains patterns
//   - Query parameters: exact values
//   - Body: exact, contains, regex, and JSONPath conditions
//
// There is no scoring. Callers that hold several matchers pick the first one
// that matches in their own order.
package matching
