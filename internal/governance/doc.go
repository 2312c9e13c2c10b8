// Package governance resolves the time budgets a request runs under: the overall
// request timeout and the settlement deadline shared by every batch.
package governance
