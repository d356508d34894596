// Package fault defines tagged errors for controller operations. Each error
// carries a Kind (validation, unauthorized, not_found, store), the operation
// name, and a short user-displayable reason. Store errors keep the
// underlying cause reachable through errors.Unwrap.
package fault
